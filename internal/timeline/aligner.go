// Package timeline turns chunk-relative word marks into one track-relative word timeline.
package timeline

import (
	"math"
	"strings"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/speechify"
)

type word struct {
	text       string
	start, end int64 // centiseconds
}

// Aligner accumulates word timings across chunks. Times are kept in centiseconds and
// truncated the same way the audio assembler truncates segment durations, so a word never
// ends after the audio that speaks it.
type Aligner struct {
	words     []word
	lastStart int64
}

// NewAligner creates an empty aligner.
func NewAligner() *Aligner {
	return &Aligner{}
}

// Append places one chunk's marks on the track. offsetCentis must be the track length
// before this chunk's audio was appended; segmentCentis is this chunk's audio length.
func (a *Aligner) Append(marks []speechify.Mark, offsetCentis, segmentCentis int64) {
	limit := offsetCentis + segmentCentis

	for _, m := range marks {
		text := strings.TrimSpace(m.Value)
		if text == "" {
			continue
		}

		start := offsetCentis + msToCentis(m.StartMs)
		end := offsetCentis + msToCentis(m.EndMs)

		start = min(max(start, a.lastStart), limit)
		end = min(max(end, start), limit)

		a.words = append(a.words, word{text: text, start: start, end: end})
		a.lastStart = start
	}
}

// Len returns the number of aligned words.
func (a *Aligner) Len() int {
	return len(a.words)
}

// Words returns a copy of the timeline.
func (a *Aligner) Words() []domain.Word {
	out := make([]domain.Word, len(a.words))
	for i, w := range a.words {
		out[i] = domain.Word{Text: w.text, StartSec: toSeconds(w.start), EndSec: toSeconds(w.end)}
	}
	return out
}

// Shift returns words moved later by offsetSec, e.g. a body timeline placed after a
// title narration. The input is not modified.
func Shift(words []domain.Word, offsetSec float64) []domain.Word {
	offset := toCentis(offsetSec)
	out := make([]domain.Word, len(words))
	for i, w := range words {
		out[i] = domain.Word{
			Text:     w.Text,
			StartSec: toSeconds(toCentis(w.StartSec) + offset),
			EndSec:   toSeconds(toCentis(w.EndSec) + offset),
		}
	}
	return out
}

func msToCentis(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return ms / 10
}

// toCentis rounds rather than floors; timeline values are already whole hundredths.
func toCentis(sec float64) int64 {
	return int64(math.Round(sec * 100))
}

func toSeconds(c int64) float64 {
	return float64(c) / 100
}
