package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if err := c.Session.Descriptor().Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if c.Replay.Rate <= 0 {
		return fmt.Errorf("replay.rate must be positive, got %v", c.Replay.Rate)
	}
	if c.Replay.SendBuffer < 1 {
		return fmt.Errorf("replay.send_buffer must be >= 1, got %d", c.Replay.SendBuffer)
	}

	if c.Archive.Workers < 1 {
		return fmt.Errorf("archive.workers must be >= 1, got %d", c.Archive.Workers)
	}
	if c.Archive.TimeoutSec < 1 {
		return fmt.Errorf("archive.timeout_sec must be >= 1, got %d", c.Archive.TimeoutSec)
	}

	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}

	if c.Prediction.Enabled {
		if len(c.Prediction.Qualifying) == 0 {
			return fmt.Errorf("prediction.qualifying is required when prediction is enabled")
		}
		for i, q := range c.Prediction.Qualifying {
			if q.Code == "" {
				return fmt.Errorf("prediction.qualifying[%d]: code is required", i)
			}
			if q.Seconds <= 0 {
				return fmt.Errorf("prediction.qualifying[%d] (%s): seconds must be positive", i, q.Code)
			}
		}
		if c.Prediction.ReferenceYear < 2018 {
			return fmt.Errorf("prediction.reference_year must be >= 2018, got %d", c.Prediction.ReferenceYear)
		}
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}
