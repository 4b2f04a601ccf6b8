package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testDescriptor() Descriptor {
	return Descriptor{Year: 2023, Event: "monza", Session: "R"}
}

func TestListDrivers_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expectedPath := "/v1/sessions/2023/monza/R/drivers"
		if r.URL.Path != expectedPath {
			t.Errorf("expected path %s, got %s", expectedPath, r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(driversResponse{Drivers: []string{"VER", "HAM", "LEC"}})
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, 10, 30*time.Second, 1*time.Second, 3, logger)

	drivers, err := client.ListDrivers(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(drivers) != 3 || drivers[0] != "VER" {
		t.Errorf("unexpected drivers: %v", drivers)
	}
}

func TestListDrivers_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, 10, 30*time.Second, 1*time.Second, 0, logger)

	_, err := client.ListDrivers(context.Background(), testDescriptor())
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListDrivers_RetriesServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(driversResponse{Drivers: []string{"VER"}})
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, 10, 30*time.Second, 10*time.Millisecond, 3, logger)

	drivers, err := client.ListDrivers(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(drivers) != 1 {
		t.Errorf("unexpected drivers: %v", drivers)
	}
}

func TestDownloadTelemetry_Success(t *testing.T) {
	payload := []byte("{\"time\": 0.0, \"speed\": 280}\n{\"time\": 0.5, \"speed\": 283}\n")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expectedPath := "/v1/sessions/2023/monza/R/telemetry/VER"
		if r.URL.Path != expectedPath {
			t.Errorf("expected path %s, got %s", expectedPath, r.URL.Path)
		}
		w.Write(payload)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, 10, 30*time.Second, 1*time.Second, 0, logger)

	var buf bytes.Buffer
	size, err := client.DownloadTelemetry(context.Background(), testDescriptor(), "VER", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if size != int64(len(payload)) {
		t.Errorf("expected size %d, got %d", len(payload), size)
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Error("downloaded content does not match")
	}
}

func TestDownloadLaps_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, 10, 30*time.Second, 1*time.Second, 0, logger)

	var buf bytes.Buffer
	_, err := client.DownloadLaps(context.Background(), testDescriptor(), &buf)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
