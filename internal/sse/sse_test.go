package sse

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/narrator/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go m.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.EventChan:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestManager_PublishFinishedJob(t *testing.T) {
	m := newTestManager(t)
	client, err := m.Connect("")
	require.NoError(t, err)

	job := &domain.NarrationJob{ID: "nar-1", Title: "Story", Status: domain.NarrationStatusCompleted, WordCount: 40}
	require.NoError(t, m.Publish(context.Background(), job))

	ev := receive(t, client)
	assert.Equal(t, "narration.completed", ev.Type)
	assert.Equal(t, "nar-1", ev.JobID)
	require.NotNil(t, ev.Data)
	assert.Equal(t, 40, ev.Data.WordCount)
}

func TestManager_SkipsUnfinishedJobs(t *testing.T) {
	m := newTestManager(t)
	client, err := m.Connect("")
	require.NoError(t, err)

	require.NoError(t, m.Publish(context.Background(), &domain.NarrationJob{ID: "nar-1", Status: domain.NarrationStatusRunning}))
	require.NoError(t, m.Publish(context.Background(), &domain.NarrationJob{ID: "nar-2", Status: domain.NarrationStatusFailed}))

	ev := receive(t, client)
	assert.Equal(t, "narration.failed", ev.Type)
	assert.Equal(t, "nar-2", ev.JobID)
}

func TestManager_FiltersByJob(t *testing.T) {
	m := newTestManager(t)
	watcher, err := m.Connect("nar-2")
	require.NoError(t, err)

	require.NoError(t, m.Publish(context.Background(), &domain.NarrationJob{ID: "nar-1", Status: domain.NarrationStatusCompleted}))
	require.NoError(t, m.Publish(context.Background(), &domain.NarrationJob{ID: "nar-2", Status: domain.NarrationStatusCompleted}))

	assert.Equal(t, "nar-2", receive(t, watcher).JobID)
}

func TestManager_DisconnectAndShutdown(t *testing.T) {
	m := NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go m.Start(context.Background())

	a, err := m.Connect("")
	require.NoError(t, err)
	_, err = m.Connect("")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.Disconnect(a.ID)
	m.Disconnect(a.ID)
	assert.Equal(t, 1, m.ClientCount())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, 0, m.ClientCount())

	// Dropped silently after shutdown.
	require.NoError(t, m.Publish(context.Background(), &domain.NarrationJob{ID: "nar-1", Status: domain.NarrationStatusCompleted}))
}

func TestHandler_StreamsEvents(t *testing.T) {
	m := newTestManager(t)
	srv := httptest.NewServer(NewHandler(m, slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?job=nar-7", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		require.True(t, lines.Scan())
		return lines.Text()
	}

	assert.Equal(t, "event: connected", next())
	assert.True(t, strings.HasPrefix(next(), "data: "))
	assert.Empty(t, next())

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, m.Publish(context.Background(), &domain.NarrationJob{ID: "nar-7", Status: domain.NarrationStatusCompleted}))

	assert.Equal(t, "event: narration.completed", next())
	assert.Contains(t, next(), `"job_id":"nar-7"`)
}

func TestHandler_RejectsNonGet(t *testing.T) {
	m := newTestManager(t)
	rec := httptest.NewRecorder()
	NewHandler(m, slog.Default()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
