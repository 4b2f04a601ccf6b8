package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/pitwall/racefeed/internal/telemetry"
)

var ErrPrediction = errors.New("prediction failed")

// holdout: with at least this many merged drivers, every fifth is held out
// of the fit to estimate model error.
const holdoutMin = 5

// QualifyingEntry is one row of the upcoming race's qualifying table.
type QualifyingEntry struct {
	Driver  string  `json:"driver" mapstructure:"driver"`
	Code    string  `json:"code" mapstructure:"code"`
	Seconds float64 `json:"seconds" mapstructure:"seconds"`
}

// Prediction is one driver's predicted race pace.
type Prediction struct {
	Driver           string  `json:"driver"`
	PredictedSeconds float64 `json:"predicted_seconds"`
}

// Payload is the one-shot prediction message body. MAESeconds is nil when
// there were too few drivers to hold any out of the fit.
type Payload struct {
	Predictions []Prediction `json:"predictions"`
	MAESeconds  *float64     `json:"mae_seconds"`
}

// Builder regresses a reference season's race lap times against the current
// qualifying times and predicts race pace per driver. Inputs are fixed at
// construction; Build is cheap enough to run per connection.
type Builder struct {
	laps       []telemetry.Lap
	qualifying []QualifyingEntry
	logger     *zap.Logger
}

func NewBuilder(laps []telemetry.Lap, qualifying []QualifyingEntry, logger *zap.Logger) *Builder {
	return &Builder{
		laps:       laps,
		qualifying: qualifying,
		logger:     logger,
	}
}

// Build fits the regression and predicts every qualifying entry, fastest
// first. Every failure wraps ErrPrediction.
func (b *Builder) Build(ctx context.Context) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPrediction, err)
	}
	if len(b.qualifying) == 0 {
		return nil, fmt.Errorf("%w: no qualifying table", ErrPrediction)
	}

	pace := meanLapSeconds(b.laps)

	// Merge qualifying with reference pace by driver code, stable order.
	var qual, race []float64
	for _, q := range sortedByCode(b.qualifying) {
		if mean, ok := pace[q.Code]; ok {
			qual = append(qual, q.Seconds)
			race = append(race, mean)
		}
	}
	if len(qual) < 2 {
		return nil, fmt.Errorf("%w: only %d drivers overlap the reference laps", ErrPrediction, len(qual))
	}

	trainQ, trainR := qual, race
	var testQ, testR []float64
	if len(qual) >= holdoutMin {
		trainQ, trainR, testQ, testR = split(qual, race)
	}

	alpha, beta := stat.LinearRegression(trainQ, trainR, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return nil, fmt.Errorf("%w: degenerate regression", ErrPrediction)
	}

	payload := &Payload{
		Predictions: make([]Prediction, 0, len(b.qualifying)),
	}
	for _, q := range b.qualifying {
		payload.Predictions = append(payload.Predictions, Prediction{
			Driver:           q.Driver,
			PredictedSeconds: alpha + beta*q.Seconds,
		})
	}
	sort.Slice(payload.Predictions, func(i, j int) bool {
		return payload.Predictions[i].PredictedSeconds < payload.Predictions[j].PredictedSeconds
	})

	if len(testQ) > 0 {
		var sum float64
		for i := range testQ {
			sum += math.Abs(testR[i] - (alpha + beta*testQ[i]))
		}
		mae := sum / float64(len(testQ))
		payload.MAESeconds = &mae
	}

	b.logger.Debug("prediction built",
		zap.Int("drivers", len(payload.Predictions)),
		zap.Int("training", len(trainQ)),
		zap.Float64("alpha", alpha),
		zap.Float64("beta", beta),
	)

	return payload, nil
}

// meanLapSeconds averages race lap times per driver code.
func meanLapSeconds(laps []telemetry.Lap) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, lap := range laps {
		if lap.Seconds <= 0 {
			continue
		}
		sums[lap.Driver] += lap.Seconds
		counts[lap.Driver]++
	}

	means := make(map[string]float64, len(sums))
	for code, sum := range sums {
		means[code] = sum / float64(counts[code])
	}
	return means
}

func sortedByCode(entries []QualifyingEntry) []QualifyingEntry {
	out := make([]QualifyingEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// split holds out every fifth pair for error estimation.
func split(qual, race []float64) (trainQ, trainR, testQ, testR []float64) {
	for i := range qual {
		if (i+1)%holdoutMin == 0 {
			testQ = append(testQ, qual[i])
			testR = append(testR, race[i])
		} else {
			trainQ = append(trainQ, qual[i])
			trainR = append(trainR, race[i])
		}
	}
	return trainQ, trainR, testQ, testR
}
