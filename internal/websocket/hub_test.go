package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
)

// mockClient creates a Client for a home with a send channel but no real connection.
func mockClient(hub *Hub, homeID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		homeID: homeID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastScopedToHome(t *testing.T) {
	hub := NewHub(slog.Default())

	same := mockClient(hub, 1)
	other := mockClient(hub, 2)
	hub.Register(same)
	hub.Register(other)

	msg := NewMessage("task", "created", 42, nil)
	hub.Broadcast(1, msg)

	select {
	case data := <-same.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "task_created" {
			t.Errorf("expected type task_created, got %s", got.Type)
		}
		if got.ID != 42 {
			t.Errorf("expected id 42, got %d", got.ID)
		}
	default:
		t.Fatal("client in home 1 did not receive broadcast")
	}

	select {
	case <-other.send:
		t.Fatal("client in home 2 received another home's broadcast")
	default:
	}
}

func TestBroadcastFullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1)
	hub.Register(c)

	msg := NewMessage("task", "updated", 1, nil)
	for i := 0; i < sendBufferSize+5; i++ {
		hub.Broadcast(1, msg)
	}
	// Reaching here means the full buffer dropped messages instead of blocking.
	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
}

func TestHomeClientCount(t *testing.T) {
	hub := NewHub(slog.Default())

	hub.Register(mockClient(hub, 7))
	hub.Register(mockClient(hub, 7))
	hub.Register(mockClient(hub, 8))

	if got := hub.HomeClientCount(7); got != 2 {
		t.Errorf("home 7 count = %d, want 2", got)
	}
	if got := hub.HomeClientCount(9); got != 0 {
		t.Errorf("home 9 count = %d, want 0", got)
	}
}
