package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pitwall/racefeed/internal/telemetry"
)

// DefaultRate is the aggregate emission rate in samples per second, summed
// across all drivers.
const DefaultRate = 50.0

type EventKind int

const (
	EventTelemetry EventKind = iota
	EventSessionEnd
)

// Event is one pacer emission: a telemetry sample enriched with the
// driver's live standing, or the end-of-session marker carrying the final
// ranking.
type Event struct {
	Kind      EventKind
	Sample    telemetry.Sample
	Standing  Standing
	Samples   int        // session end: samples emitted this run
	Standings []Standing // session end: final ranking
}

// Progress is a point-in-time view of the replay.
type Progress struct {
	Emitted  int            `json:"emitted"`
	Total    int            `json:"total"`
	Drivers  map[string]int `json:"drivers"`
	Complete bool           `json:"complete"`
}

type Option func(*Pacer)

// WithClock injects the clock, real by default.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Pacer) {
		p.clock = clock
	}
}

// WithLoop makes the replay restart after the end-of-session event instead
// of stopping.
func WithLoop(loop bool) Option {
	return func(p *Pacer) {
		p.loop = loop
	}
}

// Pacer drives the replay. It waits one interval between successive
// emissions so the aggregate rate stays at the target no matter how many
// drivers remain in the rotation. The pacer is the sole owner of the
// session's cursors.
type Pacer struct {
	session   *Session
	standings *Standings
	rate      float64
	interval  time.Duration
	loop      bool
	clock     clockwork.Clock
	logger    *zap.Logger

	// guards session and standings between the run loop and Progress
	mu sync.Mutex
}

func NewPacer(session *Session, rate float64, logger *zap.Logger, opts ...Option) (*Pacer, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %v", rate)
	}

	p := &Pacer{
		session:   session,
		standings: NewStandings(),
		rate:      rate,
		interval:  time.Duration(float64(time.Second) / rate),
		clock:     clockwork.NewRealClock(),
		logger:    logger,
	}

	for _, o := range opts {
		o(p)
	}

	return p, nil
}

// Interval is the pacing delay between emissions.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Run emits events until the session is exhausted or ctx is cancelled.
// Call this in a goroutine. The end-of-session event is emitted exactly
// once per run; with looping enabled the session restarts right after it.
// The emit callback must not block.
func (p *Pacer) Run(ctx context.Context, emit func(Event)) {
	tick := p.clock.NewTicker(p.interval)
	defer tick.Stop()

	p.logger.Info("replay started",
		zap.Float64("rate", p.rate),
		zap.Duration("interval", p.interval),
		zap.Int("drivers", len(p.session.Drivers())),
		zap.Int("samples", p.session.Total()),
		zap.Bool("loop", p.loop),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("replay stopping")
			return

		case <-tick.Chan():
		}

		p.mu.Lock()
		sample, ok := p.session.Next()
		if !ok {
			samples := p.session.Emitted()
			final := p.standings.Snapshot()
			if p.loop {
				p.session.Restart()
				p.standings.Reset()
			}
			p.mu.Unlock()

			emit(Event{Kind: EventSessionEnd, Samples: samples, Standings: final})

			if !p.loop {
				p.logger.Info("replay complete", zap.Int("samples", samples))
				return
			}

			p.logger.Info("replay restarting")
			continue
		}
		standing := p.standings.Update(sample)
		p.mu.Unlock()

		emit(Event{Kind: EventTelemetry, Sample: sample, Standing: standing})
	}
}

// Progress reports replay position. Safe to call while Run is live.
func (p *Pacer) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.progress()
}

// Standings reports the current live ranking. Safe to call while Run is
// live.
func (p *Pacer) Standings() []Standing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.standings.Snapshot()
}
