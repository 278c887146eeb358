// Package chunker splits narration text into TTS-sized chunks at sentence boundaries.
package chunker

import (
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"golang.org/x/text/unicode/norm"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
)

// DefaultWordLimit is the most words the TTS page reliably accepts in one request.
const DefaultWordLimit = 200

// SentenceSplitter splits text into sentences.
type SentenceSplitter interface {
	Tokenize(text string) []*sentences.Sentence
}

// Chunker groups sentences into chunks of at most a word limit.
type Chunker struct {
	splitter SentenceSplitter
}

// New creates a Chunker backed by the English Punkt model.
func New() (*Chunker, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "load sentence model")
	}
	return &Chunker{splitter: tokenizer}, nil
}

var defaultChunker = sync.OnceValues(New)

// Chunk splits text with the shared default Chunker.
func Chunk(text string, wordLimit int) ([]domain.TextChunk, error) {
	c, err := defaultChunker()
	if err != nil {
		return nil, err
	}
	return c.Chunk(text, wordLimit)
}

// Chunk splits text into ordered chunks. A chunk is closed when the next sentence
// would push its word count above wordLimit; a sentence longer than wordLimit on its
// own becomes a single chunk. Empty text yields no chunks.
func (c *Chunker) Chunk(text string, wordLimit int) ([]domain.TextChunk, error) {
	if wordLimit < 1 {
		return nil, errors.InvalidConfigurationf("word limit must be at least 1, got %d", wordLimit)
	}

	var (
		chunks  []domain.TextChunk
		current []string
		count   int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, domain.TextChunk{
			Index:     len(chunks),
			Text:      strings.Join(current, " "),
			WordCount: count,
		})
		current, count = nil, 0
	}

	for _, sentence := range c.sentences(text) {
		words := len(strings.Fields(sentence))
		if count > 0 && count+words > wordLimit {
			flush()
		}
		current = append(current, sentence)
		count += words
	}
	flush()

	return chunks, nil
}

// sentences returns the trimmed, non-blank sentences of text in order.
func (c *Chunker) sentences(text string) []string {
	text = norm.NFC.String(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []string
	for _, s := range c.splitter.Tokenize(text) {
		// Punkt keeps line breaks inside a sentence; collapse them so the page
		// receives one flowing paragraph.
		trimmed := strings.Join(strings.Fields(s.Text), " ")
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
