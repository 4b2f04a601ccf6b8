package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8765" {
		t.Errorf("expected default port 8765, got %s", cfg.Server.Port)
	}
	if cfg.Replay.Rate != 50.0 {
		t.Errorf("expected default rate 50, got %v", cfg.Replay.Rate)
	}
	if cfg.Replay.Loop {
		t.Error("loop should default to off")
	}
	if cfg.Session.Year != 2023 || cfg.Session.Event != "monaco" || cfg.Session.Session != "R" {
		t.Errorf("unexpected default session: %+v", cfg.Session)
	}
	if cfg.Prediction.Enabled {
		t.Error("prediction should default to disabled")
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
session:
  year: 2024
  event: suzuka
  session: Q
replay:
  rate: 200
  loop: true
prediction:
  enabled: true
  reference_year: 2023
  qualifying:
    - driver: Max Verstappen
      code: VER
      seconds: 88.197
    - driver: Lando Norris
      code: NOR
      seconds: 88.463
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Session.Year != 2024 || cfg.Session.Event != "suzuka" || cfg.Session.Session != "Q" {
		t.Errorf("unexpected session: %+v", cfg.Session)
	}
	if cfg.Replay.Rate != 200 || !cfg.Replay.Loop {
		t.Errorf("unexpected replay config: %+v", cfg.Replay)
	}
	if len(cfg.Prediction.Qualifying) != 2 {
		t.Fatalf("expected 2 qualifying entries, got %d", len(cfg.Prediction.Qualifying))
	}
	if cfg.Prediction.Qualifying[0].Code != "VER" || cfg.Prediction.Qualifying[0].Seconds != 88.197 {
		t.Errorf("unexpected qualifying entry: %+v", cfg.Prediction.Qualifying[0])
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RACEFEED_REPLAY_RATE", "125")
	t.Setenv("RACEFEED_SESSION_EVENT", "spa")

	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Replay.Rate != 125 {
		t.Errorf("expected rate 125 from env, got %v", cfg.Replay.Rate)
	}
	if cfg.Session.Event != "spa" {
		t.Errorf("expected event spa from env, got %s", cfg.Session.Event)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: "9000"}
	if s.Addr() != "127.0.0.1:9000" {
		t.Errorf("unexpected addr: %s", s.Addr())
	}
}
