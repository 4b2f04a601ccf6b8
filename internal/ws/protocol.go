package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pitwall/racefeed/internal/replay"
	"github.com/pitwall/racefeed/internal/telemetry"
)

// Wire messages are JSON text frames. Every message carries a "type"
// discriminator: "prediction" (once, first), "telemetry" (the stream),
// "session_end" (once per replay run), "error" (recoverable failures).

type predictionMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type telemetryMessage struct {
	Type       string           `json:"type"`
	Driver     string           `json:"driver"`
	Time       float64          `json:"time"`
	Seq        int              `json:"seq"`
	Lap        int              `json:"lap"`
	Position   int              `json:"position"`
	DistanceKM float64          `json:"distance_km"`
	Fields     telemetry.Fields `json:"fields"`
}

type sessionEndMessage struct {
	Type      string            `json:"type"`
	Samples   int               `json:"samples"`
	Standings []replay.Standing `json:"standings"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// marshalPrediction computes the one-shot payload and wraps it in the
// prediction envelope.
func marshalPrediction(ctx context.Context, predict PredictFunc) ([]byte, error) {
	data, err := predict(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(predictionMessage{Type: "prediction", Data: data})
}

// marshalEvent encodes one pacer emission as a wire frame.
func marshalEvent(ev replay.Event) ([]byte, error) {
	switch ev.Kind {
	case replay.EventTelemetry:
		return json.Marshal(telemetryMessage{
			Type:       "telemetry",
			Driver:     ev.Sample.Driver,
			Time:       ev.Sample.Time,
			Seq:        ev.Sample.Seq,
			Lap:        ev.Standing.Lap,
			Position:   ev.Standing.Position,
			DistanceKM: ev.Standing.Distance,
			Fields:     ev.Sample.Fields,
		})
	case replay.EventSessionEnd:
		return json.Marshal(sessionEndMessage{
			Type:      "session_end",
			Samples:   ev.Samples,
			Standings: ev.Standings,
		})
	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

func marshalError(msg string) []byte {
	payload, err := json.Marshal(errorMessage{Type: "error", Message: msg})
	if err != nil {
		return []byte(`{"type":"error"}`)
	}
	return payload
}
