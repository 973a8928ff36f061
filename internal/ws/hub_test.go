package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serve registers every upgraded connection with hub and blocks until the
// client goes away.
func serve(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.AddConnection(conn)
		defer hub.RemoveConnection(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	return conn
}

func waitCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Count() = %d, want %d", hub.Count(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	srv := serve(t, hub)
	defer srv.Close()

	a := dial(t, srv.URL)
	defer a.Close()
	b := dial(t, srv.URL)
	defer b.Close()
	waitCount(t, hub, 2)

	hub.Broadcast(Message{Type: TypeCheckIn, Data: map[string]int{"meeting_id": 3}})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var got struct {
			Type string         `json:"type"`
			Data map[string]int `json:"data"`
		}
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("ReadJSON() error: %v", err)
		}
		if got.Type != TypeCheckIn || got.Data["meeting_id"] != 3 {
			t.Errorf("message = %+v", got)
		}
	}
}

func TestHub_RemovesClosedClients(t *testing.T) {
	hub := NewHub()
	srv := serve(t, hub)
	defer srv.Close()

	conn := dial(t, srv.URL)
	waitCount(t, hub, 1)

	conn.Close()
	waitCount(t, hub, 0)

	// no clients left; must not block or panic
	hub.Broadcast(Message{Type: TypeSession})
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub()
	srv := serve(t, hub)
	defer srv.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()
	waitCount(t, hub, 1)

	hub.CloseAll()
	if hub.Count() != 0 {
		t.Errorf("Count() = %d after CloseAll()", hub.Count())
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client still connected after CloseAll()")
	}
}

func TestHub_DropsStalledClient(t *testing.T) {
	hub := NewHub()
	hub.SetWriteTimeout(50 * time.Millisecond)
	srv := serve(t, hub)
	defer srv.Close()

	// never reads, so the socket buffers eventually fill
	stalled := dial(t, srv.URL)
	defer stalled.Close()
	waitCount(t, hub, 1)

	payload := strings.Repeat("x", 1<<20)
	start := time.Now()
	for i := 0; i < 256 && hub.Count() > 0; i++ {
		hub.Broadcast(Message{Type: TypeSession, Data: payload})
	}

	if hub.Count() != 0 {
		t.Fatal("stalled client was never dropped")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("broadcasts took %s", elapsed)
	}
}
