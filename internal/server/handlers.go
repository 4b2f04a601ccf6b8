package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pitwall/racefeed/internal/archive"
	"github.com/pitwall/racefeed/internal/replay"
	"github.com/pitwall/racefeed/internal/ws"
)

type Server struct {
	desc    archive.Descriptor
	pacer   *replay.Pacer
	hub     *ws.Hub
	predict ws.PredictFunc
	monitor *Monitor
	started time.Time
	logger  *zap.Logger
}

func NewServer(desc archive.Descriptor, pacer *replay.Pacer, hub *ws.Hub, predict ws.PredictFunc, monitor *Monitor, logger *zap.Logger) *Server {
	return &Server{
		desc:    desc,
		pacer:   pacer,
		hub:     hub,
		predict: predict,
		monitor: monitor,
		started: time.Now(),
		logger:  logger,
	}
}

type statusResponse struct {
	Session   string            `json:"session"`
	UptimeSec float64           `json:"uptime_sec"`
	Clients   int               `json:"clients"`
	Progress  replay.Progress   `json:"progress"`
	Standings []replay.Standing `json:"standings"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, statusResponse{
		Session:   s.desc.String(),
		UptimeSec: time.Since(s.started).Seconds(),
		Clients:   s.hub.ClientCount(),
		Progress:  s.pacer.Progress(),
		Standings: s.pacer.Standings(),
	})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write response", zap.Error(err))
	}
}
