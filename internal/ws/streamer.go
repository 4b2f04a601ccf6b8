package ws

import (
	"context"

	"go.uber.org/zap"

	"github.com/pitwall/racefeed/internal/replay"
)

// Streamer connects the pacer to the hub: every event the pacer emits is
// encoded once and broadcast to all connected clients.
type Streamer struct {
	hub    *Hub
	pacer  *replay.Pacer
	logger *zap.Logger
}

func NewStreamer(hub *Hub, pacer *replay.Pacer, logger *zap.Logger) *Streamer {
	return &Streamer{
		hub:    hub,
		pacer:  pacer,
		logger: logger,
	}
}

// Run drives the pacer until the replay completes or ctx is cancelled.
// Call this in a goroutine.
func (s *Streamer) Run(ctx context.Context) {
	s.pacer.Run(ctx, func(ev replay.Event) {
		payload, err := marshalEvent(ev)
		if err != nil {
			s.logger.Error("failed to encode event", zap.Error(err))
			return
		}
		s.hub.Broadcast(payload)
	})
	s.logger.Info("streamer finished")
}
