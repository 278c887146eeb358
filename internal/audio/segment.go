// Package audio decodes captured chunk audio, stitches it into one track, and exports it.
//
// Durations are held as whole centiseconds. Each segment's duration is floored to the
// hundredth from its frame count, so the running offset used for word timings is the exact
// sum of those floored values and never drifts with float rounding.
package audio

// Segment is the decoded PCM audio of one chunk.
type Segment struct {
	// Samples are signed 16-bit values, interleaved when Channels > 1.
	Samples    []int
	SampleRate int
	Channels   int
	Centis     int64
}

// NewSegment wraps decoded samples and derives their duration.
func NewSegment(samples []int, sampleRate, channels int) Segment {
	seg := Segment{Samples: samples, SampleRate: sampleRate, Channels: channels}
	seg.Centis = FloorCentis(int64(seg.Frames()), sampleRate)
	return seg
}

// Frames returns the number of sample frames.
func (s Segment) Frames() int {
	if s.Channels <= 0 {
		return 0
	}
	return len(s.Samples) / s.Channels
}

// Seconds returns the floored duration in seconds.
func (s Segment) Seconds() float64 {
	return CentisToSeconds(s.Centis)
}

// FloorCentis converts a frame count to centiseconds, truncating.
func FloorCentis(frames int64, sampleRate int) int64 {
	if sampleRate <= 0 || frames <= 0 {
		return 0
	}
	return frames * 100 / int64(sampleRate)
}

// CentisToSeconds converts centiseconds to seconds.
func CentisToSeconds(c int64) float64 {
	return float64(c) / 100
}
