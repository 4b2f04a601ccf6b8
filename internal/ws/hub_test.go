package ws

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T, sendBuffer int) (*Hub, context.CancelFunc) {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	hub := NewHub(sendBuffer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	return hub, cancel
}

// testClient builds a client that is not attached to a real connection; hub
// registration and broadcast only touch the send queue.
func testClient(hub *Hub, buffer int, id string) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, buffer),
		connID: id,
		logger: hub.logger,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel := newTestHub(t, 8)

	a := testClient(hub, 8, "a")
	b := testClient(hub, 8, "b")
	hub.register <- a
	hub.register <- b
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 2 })

	hub.Broadcast([]byte("one"))
	hub.Broadcast([]byte("two"))

	for _, c := range []*Client{a, b} {
		for _, want := range []string{"one", "two"} {
			select {
			case got := <-c.send:
				if string(got) != want {
					t.Errorf("client %s: got %q, want %q", c.connID, got, want)
				}
			case <-time.After(time.Second):
				t.Fatalf("client %s: missing %q", c.connID, want)
			}
		}
	}

	cancel()
	waitFor(t, "shutdown", func() bool { return hub.ClientCount() == 0 })
}

func TestHub_SlowClientEvictedWithoutStallingOthers(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel := newTestHub(t, 8)
	defer cancel()

	healthy := testClient(hub, 16, "healthy")
	slow := testClient(hub, 1, "slow")
	hub.register <- healthy
	hub.register <- slow
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 2 })

	// Nothing drains slow's queue: the first message fills it, the second
	// triggers eviction. The healthy client must see every message.
	for i := 0; i < 5; i++ {
		hub.Broadcast([]byte(fmt.Sprintf("msg-%d", i)))
	}

	waitFor(t, "slow client eviction", func() bool { return hub.ClientCount() == 1 })

	for i := 0; i < 5; i++ {
		select {
		case got := <-healthy.send:
			want := fmt.Sprintf("msg-%d", i)
			if string(got) != want {
				t.Errorf("healthy client: got %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("healthy client missing message %d", i)
		}
	}

	// The evicted client's queue is closed
	waitFor(t, "queue close", func() bool {
		for {
			select {
			case _, ok := <-slow.send:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	})
}

func TestHub_DeregisterIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel := newTestHub(t, 8)

	c := testClient(hub, 8, "c")
	hub.register <- c
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 1 })

	hub.Deregister(c)
	waitFor(t, "deregistration", func() bool { return hub.ClientCount() == 0 })

	// Second deregister is a no-op, not a panic or a deadlock
	hub.Deregister(c)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	cancel()
}

func TestHub_DeregisterAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel := newTestHub(t, 8)

	c := testClient(hub, 8, "c")
	hub.register <- c
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 1 })

	cancel()
	waitFor(t, "shutdown", func() bool { return hub.ClientCount() == 0 })

	// Must return immediately even though the run loop is gone
	done := make(chan struct{})
	go func() {
		hub.Deregister(c)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deregister blocked after shutdown")
	}
}

func TestHub_ShutdownClosesAllQueues(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel := newTestHub(t, 8)

	a := testClient(hub, 8, "a")
	b := testClient(hub, 8, "b")
	hub.register <- a
	hub.register <- b
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 2 })

	cancel()
	waitFor(t, "shutdown", func() bool { return hub.ClientCount() == 0 })

	for _, c := range []*Client{a, b} {
		select {
		case _, ok := <-c.send:
			if ok {
				t.Errorf("client %s: expected closed queue", c.connID)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s: queue not closed", c.connID)
		}
	}
}
