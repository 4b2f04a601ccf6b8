package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pitwall/racefeed/internal/archive"
	"github.com/pitwall/racefeed/internal/replay"
	"github.com/pitwall/racefeed/internal/telemetry"
	"github.com/pitwall/racefeed/internal/ws"
)

func testMonitor(t *testing.T, clock clockwork.Clock) *Monitor {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	session, err := replay.NewSession(map[string]telemetry.Track{
		"VER": {
			{Driver: "VER", Time: 0, Seq: 0, Lap: 1, Fields: telemetry.Fields{telemetry.FieldSpeed: 260}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	pacer, err := replay.NewPacer(session, 50, logger)
	if err != nil {
		t.Fatal(err)
	}

	desc := archive.Descriptor{Year: 2023, Event: "monaco", Session: "R"}
	hub := ws.NewHub(16, logger)
	return NewMonitor(desc, pacer, hub, time.Second, logger, WithMonitorClock(clock))
}

// readEvent reads one SSE event (up to the blank line separator).
func readEvent(t *testing.T, r *bufio.Reader) []string {
	t.Helper()

	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestMonitor_SSESnapshotThenUpdates(t *testing.T) {
	fc := clockwork.NewFakeClock()
	monitor := testMonitor(t, fc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(monitor.HandleSSE))
	defer srv.Close()

	reqCtx, reqCancel := context.WithCancel(context.Background())
	defer reqCancel()

	resp := getSSE(t, reqCtx, srv.URL)
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)

	// Initial snapshot arrives without any clock movement
	event := readEvent(t, reader)
	if !containsLine(event, "event: snapshot") {
		t.Fatalf("first event is not a snapshot: %v", event)
	}
	if !containsPrefix(event, "data: ") {
		t.Fatalf("snapshot has no data line: %v", event)
	}

	// Subscriber is registered once the snapshot is out; periodic updates
	// follow the monitor clock
	fc.BlockUntil(1)
	fc.Advance(time.Second)

	event = readEvent(t, reader)
	if !containsLine(event, "event: update") {
		t.Fatalf("expected update event, got: %v", event)
	}
}

func getSSE(t *testing.T, ctx context.Context, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func containsPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
