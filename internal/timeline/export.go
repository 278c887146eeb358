package timeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/listenupapp/narrator/internal/domain"
)

// WriteSRT writes one caption cue per word.
//
//	1
//	00:00:01,230 --> 00:00:01,560
//	Heck
func WriteSRT(w io.Writer, words []domain.Word) error {
	bw := bufio.NewWriter(w)
	for i, word := range words {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", i+1, srtTime(word.StartSec), srtTime(word.EndSec), word.Text)
	}
	return bw.Flush()
}

func srtTime(sec float64) string {
	ms := toCentis(sec) * 10
	h := ms / 3_600_000
	ms %= 3_600_000
	m := ms / 60_000
	ms %= 60_000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// WriteJSON writes the timeline as an indented JSON array.
func WriteJSON(w io.Writer, words []domain.Word) error {
	if words == nil {
		words = []domain.Word{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(words)
}

// ReadJSON reads a timeline written by WriteJSON.
func ReadJSON(r io.Reader) ([]domain.Word, error) {
	var words []domain.Word
	if err := json.NewDecoder(r).Decode(&words); err != nil {
		return nil, fmt.Errorf("decode word timeline: %w", err)
	}
	return words, nil
}
