// Package sse streams narration job events to HTTP clients as Server-Sent Events.
package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/id"
	"github.com/listenupapp/narrator/internal/messenger"
)

// EventHeartbeat keeps idle connections open through proxies.
const EventHeartbeat = "heartbeat"

// Event is one message on the stream. Type becomes the SSE event name.
type Event struct {
	Type string `json:"type"`
	// JobID filters delivery to clients watching one job. Empty for heartbeats.
	JobID string           `json:"job_id,omitempty"`
	Data  *messenger.Event `json:"data,omitempty"`
}

// Client represents a connected SSE client.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	// JobID restricts the client to one job's events. Empty receives all.
	JobID string
}

// Manager fans job events out to connected clients.
type Manager struct {
	clients           map[string]*Client
	events            chan Event
	logger            *slog.Logger
	wg                sync.WaitGroup
	heartbeatInterval time.Duration
	mu                sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewManager creates a new SSE Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		clients:           make(map[string]*Client),
		events:            make(chan Event, 256),
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
	}
}

// Start runs the broadcast loop until ctx is canceled or Shutdown is called.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	heartbeatTicker := time.NewTicker(m.heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case event, ok := <-m.events:
			if !ok {
				m.closeAllClients()
				return
			}
			m.broadcast(event)

		case <-heartbeatTicker.C:
			m.broadcast(Event{Type: EventHeartbeat})

		case <-ctx.Done():
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is queued, and disconnects every client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownMu.Lock()
	if m.shutdown {
		m.shutdownMu.Unlock()
		return nil
	}
	m.shutdown = true
	close(m.events)
	m.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Covers a manager whose loop never started.
		m.closeAllClients()
		return nil
	case <-ctx.Done():
		m.logger.Warn("SSE drain timeout, some events may be lost")
		return ctx.Err()
	}
}

// Publish implements messenger.Publisher so the stream sits beside NATS.
func (m *Manager) Publish(_ context.Context, job *domain.NarrationJob) error {
	subject := messenger.Subject(job)
	if subject == "" {
		return nil
	}
	ev := messenger.NewEvent(job)
	m.Emit(Event{Type: eventType(job.Status), JobID: job.ID, Data: &ev})
	return nil
}

// Close implements messenger.Publisher. The DI container calls Shutdown instead.
func (m *Manager) Close() {}

func eventType(status domain.NarrationStatus) string {
	if status == domain.NarrationStatusCompleted {
		return messenger.SubjectCompleted
	}
	return messenger.SubjectFailed
}

// Emit queues an event. Events emitted after Shutdown are dropped.
func (m *Manager) Emit(evt Event) {
	// Hold the read lock through the send so Shutdown cannot close the channel under us.
	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()

	if m.shutdown {
		return
	}

	select {
	case m.events <- evt:
	default:
		m.logger.Error("SSE event channel full, dropping event",
			slog.String("event_type", evt.Type),
			slog.String("job_id", evt.JobID))
	}
}

func (m *Manager) broadcast(event Event) {
	var delivered, dropped int

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.clients {
		if event.JobID != "" && client.JobID != "" && event.JobID != client.JobID {
			continue
		}

		// Drop rather than block on a slow client.
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
			m.logger.Warn("dropped event for slow client",
				slog.String("client_id", client.ID),
				slog.String("event_type", event.Type))
		}
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event broadcast",
			slog.String("event_type", event.Type),
			slog.Int("delivered", delivered),
			slog.Int("dropped", dropped))
	}
}

// Connect registers a client. A non-empty jobID limits it to that job's events.
func (m *Manager) Connect(jobID string) (*Client, error) {
	clientID, err := id.Generate(id.PrefixStream)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		JobID:       jobID,
		EventChan:   make(chan Event, 32),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.clients[client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("job_id", jobID),
		slog.Int("total_clients", total))
	return client, nil
}

// Disconnect removes a client and closes its channels.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, clientID)
	total := len(m.clients)
	m.mu.Unlock()

	close(client.Done)
	close(client.EventChan)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Int("total_clients", total))
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		close(client.Done)
		close(client.EventChan)
	}
	m.clients = make(map[string]*Client)
}

var _ messenger.Publisher = (*Manager)(nil)
