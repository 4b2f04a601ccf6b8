package replay

import (
	"errors"
	"testing"

	"github.com/pitwall/racefeed/internal/telemetry"
)

func track(driver string, times ...float64) telemetry.Track {
	t := make(telemetry.Track, len(times))
	for i, ts := range times {
		t[i] = telemetry.Sample{
			Driver: driver,
			Time:   ts,
			Seq:    i,
			Lap:    1,
			Fields: telemetry.Fields{telemetry.FieldSpeed: 100},
		}
	}
	return t
}

func TestNewSession_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		tracks map[string]telemetry.Track
	}{
		{
			name:   "no tracks",
			tracks: map[string]telemetry.Track{},
		},
		{
			name: "empty track",
			tracks: map[string]telemetry.Track{
				"VER": track("VER", 0, 1),
				"HAM": {},
			},
		},
		{
			name: "unsorted track",
			tracks: map[string]telemetry.Track{
				"VER": {
					{Driver: "VER", Time: 1.0, Seq: 0},
					{Driver: "VER", Time: 0.5, Seq: 1},
				},
			},
		},
		{
			name: "sparse sequence",
			tracks: map[string]telemetry.Track{
				"VER": {
					{Driver: "VER", Time: 0.0, Seq: 0},
					{Driver: "VER", Time: 1.0, Seq: 2},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.tracks)
			if !errors.Is(err, ErrInvalidSession) {
				t.Errorf("expected ErrInvalidSession, got %v", err)
			}
		})
	}
}

func TestSession_RoundRobin(t *testing.T) {
	s, err := NewSession(map[string]telemetry.Track{
		"HAM": track("HAM", 0, 1, 2),
		"VER": track("VER", 0, 1, 2),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Ascending driver order, strict alternation
	want := []string{"HAM", "VER", "HAM", "VER", "HAM", "VER"}
	for i, driver := range want {
		sample, ok := s.Next()
		if !ok {
			t.Fatalf("emission %d: session exhausted early", i)
		}
		if sample.Driver != driver {
			t.Errorf("emission %d: got %s, want %s", i, sample.Driver, driver)
		}
	}

	if _, ok := s.Next(); ok {
		t.Error("expected exhaustion after all samples")
	}
}

func TestSession_SkipsExhaustedDrivers(t *testing.T) {
	s, err := NewSession(map[string]telemetry.Track{
		"ALO": track("ALO", 0),
		"HAM": track("HAM", 0, 1, 2),
		"VER": track("VER", 0, 1),
	})
	if err != nil {
		t.Fatal(err)
	}

	// ALO drops out after one sample, VER after two; the relative order of
	// the remaining drivers is undisturbed.
	want := []string{"ALO", "HAM", "VER", "HAM", "VER", "HAM"}
	for i, driver := range want {
		sample, ok := s.Next()
		if !ok {
			t.Fatalf("emission %d: session exhausted early", i)
		}
		if sample.Driver != driver {
			t.Errorf("emission %d: got %s, want %s", i, sample.Driver, driver)
		}
	}
}

func TestSession_PerDriverOrderPreserved(t *testing.T) {
	s, err := NewSession(map[string]telemetry.Track{
		"HAM": track("HAM", 0, 1, 2, 3, 4),
		"PER": track("PER", 0, 1),
		"VER": track("VER", 0, 1, 2, 3),
	})
	if err != nil {
		t.Fatal(err)
	}

	lastSeq := map[string]int{}
	count := 0
	for {
		sample, ok := s.Next()
		if !ok {
			break
		}
		count++
		if prev, seen := lastSeq[sample.Driver]; seen && sample.Seq != prev+1 {
			t.Errorf("%s: sequence jumped from %d to %d", sample.Driver, prev, sample.Seq)
		} else if !seen && sample.Seq != 0 {
			t.Errorf("%s: first emission has sequence %d", sample.Driver, sample.Seq)
		}
		lastSeq[sample.Driver] = sample.Seq
	}

	if count != s.Total() {
		t.Errorf("emitted %d samples, track total is %d", count, s.Total())
	}
}

func TestSession_EndToEndScenario(t *testing.T) {
	// Two drivers, two samples each: A at t=0,1 and B at t=0.5,1.5
	s, err := NewSession(map[string]telemetry.Track{
		"A": track("A", 0, 1),
		"B": track("B", 0.5, 1.5),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		driver string
		seq    int
	}{
		{"A", 0}, {"B", 0}, {"A", 1}, {"B", 1},
	}
	for i, w := range want {
		sample, ok := s.Next()
		if !ok {
			t.Fatalf("emission %d: session exhausted early", i)
		}
		if sample.Driver != w.driver || sample.Seq != w.seq {
			t.Errorf("emission %d: got %s[%d], want %s[%d]", i, sample.Driver, sample.Seq, w.driver, w.seq)
		}
	}

	// Exhaustion is terminal and repeatable
	for i := 0; i < 3; i++ {
		if _, ok := s.Next(); ok {
			t.Fatal("session yielded data after exhaustion")
		}
	}
}

func TestSession_Restart(t *testing.T) {
	s, err := NewSession(map[string]telemetry.Track{
		"VER": track("VER", 0, 1),
	})
	if err != nil {
		t.Fatal(err)
	}

	for {
		if _, ok := s.Next(); !ok {
			break
		}
	}

	s.Restart()

	sample, ok := s.Next()
	if !ok || sample.Seq != 0 {
		t.Errorf("expected first sample after restart, got ok=%v seq=%d", ok, sample.Seq)
	}
	if s.Emitted() != 1 {
		t.Errorf("expected emitted count 1 after restart, got %d", s.Emitted())
	}
}

func TestSession_Progress(t *testing.T) {
	s, err := NewSession(map[string]telemetry.Track{
		"HAM": track("HAM", 0, 1),
		"VER": track("VER", 0, 1),
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Next()
	s.Next()
	s.Next()

	p := s.progress()
	if p.Emitted != 3 || p.Total != 4 || p.Complete {
		t.Errorf("unexpected progress: %+v", p)
	}
	if p.Drivers["HAM"]+p.Drivers["VER"] != 3 {
		t.Errorf("cursor positions do not add up: %+v", p.Drivers)
	}

	s.Next()
	if !s.progress().Complete {
		t.Error("expected complete after all samples")
	}
}
