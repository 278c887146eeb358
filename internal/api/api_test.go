package api

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/narration"
	"github.com/listenupapp/narrator/internal/service"
	"github.com/listenupapp/narrator/internal/store"
)

// stubNarrator returns a fixed two-word timeline without touching a browser.
type stubNarrator struct {
	mu  sync.Mutex
	err error
}

func (n *stubNarrator) Narrate(_ context.Context, req narration.Request) (*narration.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	return &narration.Result{
		WAVPath:     filepath.Join(req.OutputDir, req.BaseName+".wav"),
		MP3Path:     filepath.Join(req.OutputDir, req.BaseName+".mp3"),
		WordsPath:   filepath.Join(req.OutputDir, req.BaseName+".words.json"),
		DurationSec: 0.9,
		Chunks:      1,
		Words: []domain.Word{
			{Text: "Hello", StartSec: 0, EndSec: 0.4},
			{Text: "world", StartSec: 0.4, EndSec: 0.9},
		},
	}, nil
}

func (n *stubNarrator) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

type testServer struct {
	*Server
	api      humatest.TestAPI
	store    *store.Store
	narrator *stubNarrator
}

// setupTestServer creates a test server backed by an in-memory store.
func setupTestServer(t *testing.T, opts ...func(*Services)) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New("", logger)
	require.NoError(t, err)

	narrator := &stubNarrator{}
	svc, err := service.NewNarrationService(st, narrator, nil, nil, service.NarrationConfig{
		OutputRoot:      t.TempDir(),
		DefaultNarrator: domain.NarratorNarrator,
		WordLimit:       200,
		PollInterval:    20 * time.Millisecond,
	}, logger)
	require.NoError(t, err)
	svc.Start()

	services := Services{Store: st, Narrations: svc}
	for _, opt := range opts {
		opt(&services)
	}
	srv := NewServer(services, logger)

	t.Cleanup(func() {
		svc.Stop()
		_ = st.Close()
	})

	return &testServer{
		Server:   srv,
		api:      humatest.Wrap(t, srv.api),
		store:    st,
		narrator: narrator,
	}
}

func (ts *testServer) waitFor(t *testing.T, id string, status domain.NarrationStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := ts.store.GetNarrationJob(context.Background(), id)
		return err == nil && job.Status == status
	}, 5*time.Second, 10*time.Millisecond)
}
