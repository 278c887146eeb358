package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/narrator/internal/domain"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "narration.completed.nar-1", Subject(&domain.NarrationJob{ID: "nar-1", Status: domain.NarrationStatusCompleted}))
	assert.Equal(t, "narration.failed.nar-1", Subject(&domain.NarrationJob{ID: "nar-1", Status: domain.NarrationStatusFailed}))
	assert.Empty(t, Subject(&domain.NarrationJob{ID: "nar-1", Status: domain.NarrationStatusRunning}))
}

func TestNATSPublisher_PublishCompleted(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, slog.Default())

	job := &domain.NarrationJob{ID: "nar-1", Title: "Story", Status: domain.NarrationStatusCompleted, DurationSec: 13.34, WordCount: 40}
	require.NoError(t, p.Publish(context.Background(), job))

	require.Len(t, fc.subjects, 1)
	assert.Equal(t, "narration.completed.nar-1", fc.subjects[0])

	var ev Event
	require.NoError(t, json.Unmarshal(fc.payloads[0], &ev))
	assert.Equal(t, "nar-1", ev.JobID)
	assert.Equal(t, 13.34, ev.DurationSec)
	assert.NotZero(t, ev.Timestamp)
}

func TestNATSPublisher_SkipsUnfinished(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, slog.Default())

	require.NoError(t, p.Publish(context.Background(), &domain.NarrationJob{ID: "nar-1", Status: domain.NarrationStatusPending}))
	assert.Empty(t, fc.subjects)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	fc := &fakeConn{err: errors.New("connection closed")}
	p := newNATSPublisher(fc, slog.Default())

	err := p.Publish(context.Background(), &domain.NarrationJob{ID: "nar-1", Status: domain.NarrationStatusFailed})
	assert.ErrorContains(t, err, "connection closed")

	p.Close()
	assert.True(t, fc.drained)
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &fakeConn{}
	broken := &fakeConn{err: errors.New("connection closed")}
	m := Multi{
		newNATSPublisher(broken, slog.Default()),
		newNATSPublisher(ok, slog.Default()),
	}

	err := m.Publish(context.Background(), &domain.NarrationJob{ID: "nar-1", Status: domain.NarrationStatusCompleted})
	assert.ErrorContains(t, err, "connection closed")
	assert.Equal(t, []string{"narration.completed.nar-1"}, ok.subjects)

	m.Close()
	assert.True(t, ok.drained)
	assert.True(t, broken.drained)
}
