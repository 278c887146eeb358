package chunker

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/narrator/internal/errors"
)

// sentence builds a capitalized sentence of exactly n words ending in a period.
func sentence(n int, tag string) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%sword%d", tag, i)
	}
	words[0] = "The" + words[0]
	return strings.Join(words, " ") + "."
}

func newChunker(t *testing.T) *Chunker {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	return c
}

func TestChunk_ShortTextIsOneChunk(t *testing.T) {
	c := newChunker(t)
	text := sentence(10, "a") + " " + sentence(10, "b") + " " + sentence(10, "c")

	chunks, err := c.Chunk(text, DefaultWordLimit)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 30, chunks[0].WordCount)
	assert.Equal(t, text, chunks[0].Text)
}

func TestChunk_ClosesBeforeExceedingLimit(t *testing.T) {
	c := newChunker(t)
	parts := make([]string, 5)
	for i := range parts {
		parts[i] = sentence(60, string(rune('a'+i)))
	}

	chunks, err := c.Chunk(strings.Join(parts, " "), 200)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, 180, chunks[0].WordCount)
	assert.Equal(t, 120, chunks[1].WordCount)
	assert.Equal(t, strings.Join(parts[:3], " "), chunks[0].Text)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestChunk_ExactLimitStaysTogether(t *testing.T) {
	c := newChunker(t)
	text := sentence(100, "a") + " " + sentence(100, "b")

	chunks, err := c.Chunk(text, 200)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, 200, chunks[0].WordCount)
}

func TestChunk_OversizedSentenceIsItsOwnChunk(t *testing.T) {
	c := newChunker(t)
	text := sentence(5, "a") + " " + sentence(30, "b") + " " + sentence(5, "c")

	chunks, err := c.Chunk(text, 10)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, []int{5, 30, 5}, []int{chunks[0].WordCount, chunks[1].WordCount, chunks[2].WordCount})
}

func TestChunk_EmptyText(t *testing.T) {
	c := newChunker(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		chunks, err := c.Chunk(text, 200)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestChunk_InvalidLimit(t *testing.T) {
	c := newChunker(t)

	for _, limit := range []int{0, -5} {
		_, err := c.Chunk("Hello there.", limit)
		assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
	}
}

func TestChunk_PreservesWordSequence(t *testing.T) {
	c := newChunker(t)
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := range 25 {
		var parts []string
		for i := range 1 + rng.IntN(20) {
			parts = append(parts, sentence(1+rng.IntN(50), fmt.Sprintf("t%ds%d", trial, i)))
		}
		text := strings.Join(parts, " ")
		limit := 1 + rng.IntN(120)

		chunks, err := c.Chunk(text, limit)
		require.NoError(t, err)

		var joined []string
		for i, ch := range chunks {
			assert.Equal(t, i, ch.Index)
			words := strings.Fields(ch.Text)
			assert.Len(t, words, ch.WordCount)
			if ch.WordCount > limit {
				// only a lone oversized sentence may exceed the limit
				assert.Equal(t, 1, strings.Count(ch.Text, "."), "chunk %d over limit holds more than one sentence", i)
			}
			joined = append(joined, ch.Text)
		}
		assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(joined, " ")))
	}
}

func TestChunk_PackageDefault(t *testing.T) {
	chunks, err := Chunk("One sentence here. And another one.", DefaultWordLimit)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 6, chunks[0].WordCount)
}
