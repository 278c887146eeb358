package narration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/narrator/internal/audio"
	"github.com/listenupapp/narrator/internal/chunker"
	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/speechify"
)

// fakeRate makes one frame equal one centisecond.
const fakeRate = 100

type fakeSession struct {
	// responses are consumed in order, one per Synthesize call.
	responses []response
	calls     []domain.TextChunk
	closes    int
}

type response struct {
	payload *speechify.Payload
	err     error
}

func (s *fakeSession) Synthesize(_ context.Context, chunk domain.TextChunk) (*speechify.Payload, error) {
	s.calls = append(s.calls, chunk)
	if len(s.responses) == 0 {
		return nil, errors.ResponseNotFound("no synthesis response in network log")
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r.payload, r.err
}

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

type fakeProvider struct {
	session *fakeSession
	err     error
	opened  []domain.Narrator
}

func (p *fakeProvider) Open(_ context.Context, n domain.Narrator) (Session, error) {
	p.opened = append(p.opened, n)
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

// frameDecoder treats the payload length as the frame count.
type frameDecoder struct{ err error }

func (d frameDecoder) Decode(_ context.Context, data []byte, _ string) (audio.Segment, error) {
	if d.err != nil {
		return audio.Segment{}, d.err
	}
	return audio.NewSegment(make([]int, len(data)), fakeRate, 1), nil
}

type copyTranscoder struct{}

func (copyTranscoder) ToMP3(_ context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func payload(centis int, marks ...speechify.Mark) response {
	return response{payload: &speechify.Payload{Audio: make([]byte, centis), Format: "ogg", Marks: marks}}
}

func newPipeline(t *testing.T, provider Provider, decoder audio.Decoder) *Pipeline {
	t.Helper()
	c, err := chunker.New()
	require.NoError(t, err)
	exporter := audio.NewExporter(copyTranscoder{}, nil, audio.DefaultTolerance, discard())
	return NewPipeline(provider, decoder, exporter, c, discard())
}

func twoChunkRequest(t *testing.T) Request {
	return Request{
		Text:      "Alpha beta gamma. Delta epsilon zeta.",
		Narrator:  domain.NarratorSnoop,
		WordLimit: 3,
		OutputDir: filepath.Join(t.TempDir(), "out"),
		BaseName:  "story",
	}
}

func TestNarrate_OffsetsSecondChunkByFirstDuration(t *testing.T) {
	session := &fakeSession{responses: []response{
		payload(1234, speechify.Mark{Value: "Alpha", StartMs: 0, EndMs: 300}),
		payload(821, speechify.Mark{Value: "Delta", StartMs: 1000, EndMs: 1400}),
	}}
	provider := &fakeProvider{session: session}

	res, err := newPipeline(t, provider, frameDecoder{}).Narrate(context.Background(), twoChunkRequest(t))
	require.NoError(t, err)

	assert.Equal(t, []domain.Narrator{domain.NarratorSnoop}, provider.opened)
	require.Len(t, session.calls, 2)
	assert.Equal(t, "Alpha beta gamma.", session.calls[0].Text)
	assert.Equal(t, 1, session.closes)

	assert.Equal(t, 2, res.Chunks)
	assert.InDelta(t, 20.55, res.DurationSec, 1e-9)
	require.Len(t, res.Words, 2)
	assert.Equal(t, domain.Word{Text: "Delta", StartSec: 13.34, EndSec: 13.74}, res.Words[1])

	for _, p := range []string{res.WAVPath, res.MP3Path, res.WordsPath, res.CaptionsPath} {
		assert.FileExists(t, p)
	}
	assert.Equal(t, "story.srt", filepath.Base(res.CaptionsPath))
}

func TestNarrate_ResponseNotFoundClosesOnce(t *testing.T) {
	session := &fakeSession{}
	req := twoChunkRequest(t)

	res, err := newPipeline(t, &fakeProvider{session: session}, frameDecoder{}).Narrate(context.Background(), req)

	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errors.ErrResponseNotFound))
	assert.Equal(t, 1, session.closes)
	assert.Len(t, session.calls, 1, "remaining chunks are not attempted")
	assert.NoDirExists(t, req.OutputDir)
}

func TestNarrate_RetriesMissingResponseOnce(t *testing.T) {
	session := &fakeSession{responses: []response{
		{err: errors.ResponseNotFound("no synthesis response in network log")},
		payload(100),
		payload(100),
	}}
	req := twoChunkRequest(t)
	req.ChunkRetries = 1

	res, err := newPipeline(t, &fakeProvider{session: session}, frameDecoder{}).Narrate(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, session.calls, 3)
	assert.Equal(t, session.calls[0], session.calls[1])
	assert.InDelta(t, 2.0, res.DurationSec, 1e-9)
}

func TestNarrate_DoesNotRetryOtherFailures(t *testing.T) {
	session := &fakeSession{responses: []response{
		{err: errors.SynthesisTimeoutf("chunk 0 did not finish within 15m0s")},
		payload(100),
	}}
	req := twoChunkRequest(t)
	req.ChunkRetries = 1

	_, err := newPipeline(t, &fakeProvider{session: session}, frameDecoder{}).Narrate(context.Background(), req)

	assert.True(t, errors.Is(err, errors.ErrSynthesisTimeout))
	assert.Len(t, session.calls, 1)
	assert.Equal(t, 1, session.closes)
}

func TestNarrate_DecodeFailure(t *testing.T) {
	session := &fakeSession{responses: []response{payload(100), payload(100)}}

	_, err := newPipeline(t, &fakeProvider{session: session}, frameDecoder{err: errors.Decode("ffmpeg could not decode ogg audio", nil)}).
		Narrate(context.Background(), twoChunkRequest(t))

	assert.True(t, errors.Is(err, errors.ErrDecode))
	assert.Equal(t, 1, session.closes)
}

func TestNarrate_StartupFailurePropagates(t *testing.T) {
	provider := &fakeProvider{err: errors.SessionStartup("tts page did not become interactive", context.DeadlineExceeded)}

	_, err := newPipeline(t, provider, frameDecoder{}).Narrate(context.Background(), twoChunkRequest(t))

	assert.True(t, errors.Is(err, errors.ErrSessionStartup))
}

func TestNarrate_InvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"unknown narrator", func(r *Request) { r.Narrator = "morgan" }},
		{"zero word limit", func(r *Request) { r.WordLimit = 0 }},
		{"blank text", func(r *Request) { r.Text = "  \n" }},
		{"no output dir", func(r *Request) { r.OutputDir = "" }},
		{"too many retries", func(r *Request) { r.ChunkRetries = 2 }},
		{"base name with slash", func(r *Request) { r.BaseName = "../escape" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{session: &fakeSession{}}
			req := twoChunkRequest(t)
			tt.mutate(&req)

			_, err := newPipeline(t, provider, frameDecoder{}).Narrate(context.Background(), req)

			assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
			assert.Empty(t, provider.opened, "no session is opened for invalid input")
		})
	}
}

func TestCompose(t *testing.T) {
	title := &Result{DurationSec: 2.47, Words: []domain.Word{{Text: "AITA", StartSec: 0.1, EndSec: 0.9}}}
	body := &Result{DurationSec: 30, Words: []domain.Word{{Text: "So", StartSec: 0, EndSec: 0.2}}}

	words := Compose(title, body)

	assert.Equal(t, []domain.Word{
		{Text: "AITA", StartSec: 0.1, EndSec: 0.9},
		{Text: "So", StartSec: 2.47, EndSec: 2.67},
	}, words)
}
