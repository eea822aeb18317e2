package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oziev02/pixelflex/internal/domain"
)

func TestHubPublish(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	item := domain.NewItem("item-1", "a.png", []byte("x"), domain.Metadata{Width: 1, Height: 1})
	event := domain.ItemEvent{Type: domain.EventItemAdded, Item: item, At: time.Now()}
	if err := hub.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got domain.ItemEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Type != domain.EventItemAdded || got.Item == nil || got.Item.ID != "item-1" {
		t.Errorf("received %+v", got)
	}

	if err := hub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if hub.Subscribers() != 0 {
		t.Errorf("subscribers after close = %d", hub.Subscribers())
	}
}
