package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"coderhack/core"
	"coderhack/realtime"
)

func dial(t *testing.T, url string) *gorillaws.Conn {
	t.Helper()
	wsURL := "ws" + url[len("http"):] // convert http->ws
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	return conn
}

func waitForSubscriber(t *testing.T, hub *realtime.Hub) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerStreamsEvents(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	conn := dial(t, server.URL)
	defer conn.Close()
	waitForSubscriber(t, hub)

	ev := core.NewScoreUpdated(core.User{UserID: "alice", Score: 45, Badges: core.BadgesForScore(45)})
	hub.Broadcast(context.Background(), ev)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var received core.Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if received.UserID != "alice" || received.Score != 45 {
		t.Fatalf("unexpected event: %+v", received)
	}
}

func TestHandlerFiltersTypes(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	conn := dial(t, server.URL+"?types=badge_awarded")
	defer conn.Close()
	waitForSubscriber(t, hub)

	u := core.User{UserID: "bob", Score: 75}
	hub.Broadcast(context.Background(), core.NewScoreUpdated(u))
	hub.Broadcast(context.Background(), core.NewBadgeAwarded(u, core.BadgeCodeMaster))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received core.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("read: %v", err)
	}
	if received.Type != core.EventBadgeAwarded || received.Badge != core.BadgeCodeMaster {
		t.Fatalf("unexpected event: %+v", received)
	}
}

func TestHandlerUnsubscribesOnDisconnect(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	conn := dial(t, server.URL)
	waitForSubscriber(t, hub)
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParseTypes(t *testing.T) {
	if parseTypes("  ") != nil {
		t.Fatal("blank filter should mean all events")
	}
	got := parseTypes("score_updated, badge_awarded,")
	if len(got) != 2 {
		t.Fatalf("unexpected filter: %v", got)
	}
}
