package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pitwall/racefeed/internal/archive"
	"github.com/pitwall/racefeed/internal/replay"
	"github.com/pitwall/racefeed/internal/ws"
)

// Monitor pushes periodic replay-position snapshots to SSE subscribers.
// Each subscriber has a small buffered channel; a subscriber that cannot
// keep up just misses updates instead of backing up the broadcast loop.
type Monitor struct {
	desc     archive.Descriptor
	pacer    *replay.Pacer
	hub      *ws.Hub
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger

	mu       sync.RWMutex
	sequence uint64
	clients  map[*sseClient]bool
}

// sseClient represents a connected SSE subscriber.
type sseClient struct {
	dataCh chan []byte
	doneCh chan struct{}
}

type monitorSnapshot struct {
	Session   string            `json:"session"`
	Timestamp int64             `json:"timestamp"`
	Sequence  uint64            `json:"sequence"`
	Clients   int               `json:"clients"`
	Progress  replay.Progress   `json:"progress"`
	Standings []replay.Standing `json:"standings"`
}

type MonitorOption func(*Monitor)

func WithMonitorClock(clock clockwork.Clock) MonitorOption {
	return func(m *Monitor) {
		m.clock = clock
	}
}

func NewMonitor(desc archive.Descriptor, pacer *replay.Pacer, hub *ws.Hub, interval time.Duration, logger *zap.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		desc:     desc,
		pacer:    pacer,
		hub:      hub,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		clients:  make(map[*sseClient]bool),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run starts the periodic broadcast loop. Call this in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("monitor starting", zap.Duration("interval", m.interval))

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return
		case <-ticker.Chan():
			m.broadcastToAll()
		}
	}
}

// HandleSSE handles the SSE endpoint for subscribers.
func (m *Monitor) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &sseClient{
		dataCh: make(chan []byte, 10),
		doneCh: make(chan struct{}),
	}

	m.addClient(client)
	defer m.removeClient(client)

	m.logger.Info("monitor client connected", zap.String("remoteAddr", r.RemoteAddr))

	// Send initial snapshot
	event, err := m.formatEvent("snapshot", m.buildSnapshot())
	if err != nil {
		m.logger.Error("failed to build snapshot", zap.Error(err))
		return
	}
	if _, err := w.Write(event); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			m.logger.Info("monitor client disconnected", zap.String("remoteAddr", r.RemoteAddr))
			return
		case <-client.doneCh:
			return
		case eventData := <-client.dataCh:
			if _, err := w.Write(eventData); err != nil {
				m.logger.Debug("failed to write to monitor client", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func (m *Monitor) addClient(client *sseClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client] = true
}

func (m *Monitor) removeClient(client *sseClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client]; ok {
		delete(m.clients, client)
		close(client.doneCh)
	}
}

func (m *Monitor) buildSnapshot() monitorSnapshot {
	m.mu.Lock()
	m.sequence++
	seq := m.sequence
	m.mu.Unlock()

	return monitorSnapshot{
		Session:   m.desc.String(),
		Timestamp: m.clock.Now().UnixMilli(),
		Sequence:  seq,
		Clients:   m.hub.ClientCount(),
		Progress:  m.pacer.Progress(),
		Standings: m.pacer.Standings(),
	}
}

func (m *Monitor) broadcastToAll() {
	m.mu.RLock()
	clients := make([]*sseClient, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	event, err := m.formatEvent("update", m.buildSnapshot())
	if err != nil {
		m.logger.Error("failed to build update", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.dataCh <- event:
		default:
			// Channel full, subscriber misses this update
			m.logger.Debug("monitor client channel full, dropping update")
		}
	}
}

func (m *Monitor) formatEvent(eventType string, snap monitorSnapshot) ([]byte, error) {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", eventType, snap.Sequence, jsonData)), nil
}
