package narration

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/narrator/internal/capture"
	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/intercept"
	"github.com/listenupapp/narrator/internal/ratelimit"
	"github.com/listenupapp/narrator/internal/speechify"
)

// fakePage stands in for a browser page. Each Synthesize call captures the next entry of
// captured; an empty entry means the page produced no synthesis response.
type fakePage struct {
	captured  [][]byte
	resetErrs []error

	sent    []domain.TextChunk
	pending []string
	bodies  map[string][]byte
	resets  int
	closed  bool
}

func (p *fakePage) Synthesize(_ context.Context, chunk domain.TextChunk) error {
	if p.closed {
		return errors.Conflictf("session is %s, cannot move to synthesizing", "closed")
	}
	p.sent = append(p.sent, chunk)
	p.pending = nil

	i := len(p.sent) - 1
	if i < len(p.captured) && p.captured[i] != nil {
		requestID := fmt.Sprintf("1.%d", i)
		p.bodies[requestID] = p.captured[i]
		p.pending = append(p.pending, intercept.ResponseRecord{
			RequestID: requestID,
			URL:       speechify.SynthesisEndpoint + "?v=2",
			Status:    200,
			MimeType:  "application/json",
			Headers:   map[string]string{"content-type": speechify.SynthesisContentType},
		}.String())
	}
	return nil
}

func (p *fakePage) Records() []string {
	out := p.pending
	p.pending = nil
	return out
}

func (p *fakePage) ResponseBody(_ context.Context, requestID string) ([]byte, error) {
	body, ok := p.bodies[requestID]
	if !ok {
		return nil, fmt.Errorf("no resource with given identifier found")
	}
	return body, nil
}

func (p *fakePage) Reset(_ context.Context) error {
	p.resets++
	if len(p.resetErrs) > 0 {
		err := p.resetErrs[0]
		p.resetErrs = p.resetErrs[1:]
		if err != nil {
			p.closed = true
			return err
		}
	}
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type pageProvider struct {
	session *browserSession
}

func (p pageProvider) Open(_ context.Context, _ domain.Narrator) (Session, error) {
	return p.session, nil
}

func newBrowserSession(page *fakePage) *browserSession {
	page.bodies = make(map[string][]byte)
	provider := NewBrowserProvider(capture.Config{}, ratelimit.Every(0), discard())
	return &browserSession{session: page, provider: provider}
}

func synthesisBody(frames int, word string) []byte {
	audio := base64.StdEncoding.EncodeToString(make([]byte, frames))
	return []byte(`{"audioStream":"` + audio + `","audioFormat":"ogg","speechMarks":{"chunks":[` +
		`{"type":"sentence","chunks":[{"type":"word","value":"` + word + `","startTime":0,"endTime":300}]}]}}`)
}

func TestBrowserSession_ParsesCapturedResponse(t *testing.T) {
	page := &fakePage{captured: [][]byte{synthesisBody(50, "Alpha")}}
	s := newBrowserSession(page)

	p, err := s.Synthesize(context.Background(), domain.TextChunk{Index: 0, Text: "Alpha."})
	require.NoError(t, err)

	assert.Len(t, p.Audio, 50)
	assert.Equal(t, []speechify.Mark{{Value: "Alpha", StartMs: 0, EndMs: 300}}, p.Marks)
	assert.Equal(t, 1, page.resets)
}

func TestBrowserSession_MissedResponseResetsPage(t *testing.T) {
	page := &fakePage{}
	s := newBrowserSession(page)

	_, err := s.Synthesize(context.Background(), domain.TextChunk{Index: 0, Text: "Alpha."})

	assert.True(t, errors.Is(err, errors.ErrResponseNotFound))
	assert.Equal(t, 1, page.resets)
	assert.False(t, page.closed)
}

func TestBrowserSession_ResetFailureAfterMissIsNotRetried(t *testing.T) {
	page := &fakePage{resetErrs: []error{errors.Internal("reset tts page")}}
	req := twoChunkRequest(t)
	req.ChunkRetries = 1

	res, err := newPipeline(t, pageProvider{session: newBrowserSession(page)}, frameDecoder{}).
		Narrate(context.Background(), req)

	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errors.ErrInternal))
	assert.False(t, errors.Is(err, errors.ErrResponseNotFound))
	assert.False(t, errors.Is(err, errors.ErrConflict), "no chunk is sent to a closed page")
	assert.Len(t, page.sent, 1)
	assert.NoDirExists(t, req.OutputDir)
}

func TestBrowserSession_MissedResponseRetriedAfterReset(t *testing.T) {
	page := &fakePage{captured: [][]byte{nil, synthesisBody(100, "Alpha"), synthesisBody(100, "Delta")}}
	req := twoChunkRequest(t)
	req.ChunkRetries = 1

	res, err := newPipeline(t, pageProvider{session: newBrowserSession(page)}, frameDecoder{}).
		Narrate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, page.sent, 3)
	assert.Equal(t, page.sent[0], page.sent[1])
	assert.Equal(t, 3, page.resets)
	assert.InDelta(t, 2.0, res.DurationSec, 1e-9)
	require.Len(t, res.Words, 2)
	assert.Equal(t, "Delta", res.Words[1].Text)
}
