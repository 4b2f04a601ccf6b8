package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitwall/racefeed/internal/telemetry"
)

// SessionData is one session loaded into memory: per-driver telemetry
// tracks plus lap times when the archive has them. Read-only after load.
type SessionData struct {
	Desc   Descriptor
	Tracks map[string]telemetry.Track
	Laps   []telemetry.Lap
}

// Store loads sessions from the cache, filling it from the archive on a
// cold miss.
type Store struct {
	cache   *Cache
	fetcher *Fetcher // nil means cache-only
	logger  *zap.Logger
}

func NewStore(cache *Cache, fetcher *Fetcher, logger *zap.Logger) *Store {
	return &Store{
		cache:   cache,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Load returns the session's telemetry. Every failure wraps
// ErrSessionUnavailable: without data there is nothing to replay.
func (s *Store) Load(ctx context.Context, desc Descriptor) (*SessionData, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionUnavailable, err)
	}

	drivers, err := s.cache.Drivers(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: reading cache: %s", ErrSessionUnavailable, err)
	}

	if len(drivers) == 0 {
		if s.fetcher == nil {
			return nil, fmt.Errorf("%w: %s is not cached", ErrSessionUnavailable, desc)
		}

		s.logger.Info("session not cached, fetching", zap.String("session", desc.String()))
		batch, err := s.fetcher.FetchSession(ctx, desc)
		if err != nil {
			return nil, fmt.Errorf("%w: fetching %s: %s", ErrSessionUnavailable, desc, err)
		}
		if batch.Failed > 0 {
			s.logger.Warn("fetch finished with failures",
				zap.Int("failed", batch.Failed),
				zap.Strings("errors", batch.Errors))
		}

		drivers, err = s.cache.Drivers(desc)
		if err != nil || len(drivers) == 0 {
			return nil, fmt.Errorf("%w: no telemetry for %s", ErrSessionUnavailable, desc)
		}
	}

	data := &SessionData{
		Desc:   desc,
		Tracks: make(map[string]telemetry.Track, len(drivers)),
	}

	for _, driver := range drivers {
		raw, err := s.cache.ReadFile(s.cache.TelemetryPath(desc, driver))
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s telemetry: %s", ErrSessionUnavailable, driver, err)
		}

		track, err := parseTrack(driver, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing %s telemetry: %s", ErrSessionUnavailable, driver, err)
		}

		data.Tracks[driver] = track
		s.logger.Info("loaded track",
			zap.String("driver", driver),
			zap.Int("samples", len(track)),
		)
	}

	if lapsPath := s.cache.LapsPath(desc); s.cache.Has(lapsPath) {
		raw, err := s.cache.ReadFile(lapsPath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading laps: %s", ErrSessionUnavailable, err)
		}

		laps, err := parseLaps(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing laps: %s", ErrSessionUnavailable, err)
		}

		data.Laps = laps
		s.logger.Info("loaded laps", zap.Int("count", len(laps)))
	}

	return data, nil
}

// LoadLaps returns only a session's lap times, fetching them on a cache
// miss. Used for the prediction reference season, where pulling the full
// telemetry would be waste.
func (s *Store) LoadLaps(ctx context.Context, desc Descriptor) ([]telemetry.Lap, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionUnavailable, err)
	}

	lapsPath := s.cache.LapsPath(desc)
	if !s.cache.Has(lapsPath) {
		if s.fetcher == nil {
			return nil, fmt.Errorf("%w: laps for %s are not cached", ErrSessionUnavailable, desc)
		}

		s.logger.Info("laps not cached, fetching", zap.String("session", desc.String()))
		batch, err := s.fetcher.Execute(ctx, []Task{{Desc: desc, Laps: true}})
		if err != nil {
			return nil, fmt.Errorf("%w: fetching laps for %s: %s", ErrSessionUnavailable, desc, err)
		}
		if batch.Success == 0 {
			return nil, fmt.Errorf("%w: no laps for %s", ErrSessionUnavailable, desc)
		}
	}

	raw, err := s.cache.ReadFile(lapsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading laps: %s", ErrSessionUnavailable, err)
	}

	laps, err := parseLaps(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing laps: %s", ErrSessionUnavailable, err)
	}
	return laps, nil
}

// telemetryLine is the archive's flat JSONL shape, one sample per line.
type telemetryLine struct {
	Time     float64 `json:"time"`
	Lap      int     `json:"lap"`
	Speed    float64 `json:"speed"`
	RPM      float64 `json:"rpm"`
	Gear     float64 `json:"gear"`
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
	DRS      float64 `json:"drs"`
}

func parseTrack(driver string, raw []byte) (telemetry.Track, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))

	// Increase buffer size for large lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var track telemetry.Track
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var tl telemetryLine
		if err := json.Unmarshal(line, &tl); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		track = append(track, telemetry.Sample{
			Driver: driver,
			Time:   tl.Time,
			Seq:    len(track),
			Lap:    tl.Lap,
			Fields: telemetry.Fields{
				telemetry.FieldSpeed:    tl.Speed,
				telemetry.FieldRPM:      tl.RPM,
				telemetry.FieldGear:     tl.Gear,
				telemetry.FieldThrottle: tl.Throttle,
				telemetry.FieldBrake:    tl.Brake,
				telemetry.FieldDRS:      tl.DRS,
			},
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return track, nil
}

func parseLaps(raw []byte) ([]telemetry.Lap, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))

	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var laps []telemetry.Lap
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var lap telemetry.Lap
		if err := json.Unmarshal(line, &lap); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		laps = append(laps, lap)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return laps, nil
}
