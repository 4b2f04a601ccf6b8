package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pitwall/racefeed/internal/archive"
	"github.com/pitwall/racefeed/internal/predict"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Session    SessionConfig    `mapstructure:"session"`
	Replay     ReplayConfig     `mapstructure:"replay"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Prediction PredictionConfig `mapstructure:"prediction"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// SessionConfig names the Grand Prix session to replay.
type SessionConfig struct {
	Year    int    `mapstructure:"year"`
	Event   string `mapstructure:"event"`
	Session string `mapstructure:"session"`
}

func (s SessionConfig) Descriptor() archive.Descriptor {
	return archive.Descriptor{Year: s.Year, Event: s.Event, Session: s.Session}
}

type ReplayConfig struct {
	Rate       float64 `mapstructure:"rate"` // samples/sec across all drivers
	Loop       bool    `mapstructure:"loop"`
	SendBuffer int     `mapstructure:"send_buffer"`
}

type ArchiveConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelaySec int    `mapstructure:"retry_delay_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
	Workers       int    `mapstructure:"workers"`
}

func (a ArchiveConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}

func (a ArchiveConfig) RetryDelay() time.Duration {
	return time.Duration(a.RetryDelaySec) * time.Second
}

type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// PredictionConfig holds the upcoming race's qualifying table and the
// reference season whose race laps the regression is fit against.
type PredictionConfig struct {
	Enabled       bool                      `mapstructure:"enabled"`
	ReferenceYear int                       `mapstructure:"reference_year"`
	Qualifying    []predict.QualifyingEntry `mapstructure:"qualifying"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8765")
	v.SetDefault("session.year", 2023)
	v.SetDefault("session.event", "monaco")
	v.SetDefault("session.session", "R")
	v.SetDefault("replay.rate", 50.0)
	v.SetDefault("replay.loop", false)
	v.SetDefault("replay.send_buffer", 256)
	v.SetDefault("archive.base_url", "https://archive.pitwall.dev")
	v.SetDefault("archive.timeout_sec", 300)
	v.SetDefault("archive.retry_count", 3)
	v.SetDefault("archive.retry_delay_sec", 5)
	v.SetDefault("archive.rate_per_second", 2)
	v.SetDefault("archive.workers", 3)
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("prediction.enabled", false)
	v.SetDefault("prediction.reference_year", 2022)
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("RACEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
