package audio

import (
	"fmt"

	"github.com/listenupapp/narrator/internal/errors"
)

// Track is an ordered run of segments sharing one sample format.
type Track struct {
	SampleRate int
	Channels   int
	Segments   []Segment
	Centis     int64
}

// Seconds returns the total track duration.
func (t *Track) Seconds() float64 {
	return CentisToSeconds(t.Centis)
}

// Samples returns every segment's samples back to back.
func (t *Track) Samples() []int {
	n := 0
	for _, s := range t.Segments {
		n += len(s.Samples)
	}
	out := make([]int, 0, n)
	for _, s := range t.Segments {
		out = append(out, s.Samples...)
	}
	return out
}

// Assembler appends chunk segments and keeps the cumulative duration.
type Assembler struct {
	track Track
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Offset returns the cumulative duration before the next append, in centiseconds.
// Word timings for the next chunk are shifted by this value.
func (a *Assembler) Offset() int64 {
	return a.track.Centis
}

// Append adds seg to the end of the track. All segments must share rate and channel count.
func (a *Assembler) Append(seg Segment) error {
	if seg.SampleRate <= 0 || seg.Channels <= 0 {
		return errors.Decode(fmt.Sprintf("segment has invalid format %d Hz x %d", seg.SampleRate, seg.Channels), nil)
	}
	if len(a.track.Segments) == 0 {
		a.track.SampleRate = seg.SampleRate
		a.track.Channels = seg.Channels
	} else if seg.SampleRate != a.track.SampleRate || seg.Channels != a.track.Channels {
		return errors.Decode(fmt.Sprintf("segment format %d Hz x %d does not match track %d Hz x %d",
			seg.SampleRate, seg.Channels, a.track.SampleRate, a.track.Channels), nil)
	}

	a.track.Segments = append(a.track.Segments, seg)
	a.track.Centis += seg.Centis
	return nil
}

// Len returns the number of appended segments.
func (a *Assembler) Len() int {
	return len(a.track.Segments)
}

// Track returns the assembled track.
func (a *Assembler) Track() *Track {
	t := a.track
	t.Segments = append([]Segment(nil), a.track.Segments...)
	return &t
}
