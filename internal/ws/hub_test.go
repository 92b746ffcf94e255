package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tableside/floor/internal/auth"
)

const testSecret = "ws-test-secret"

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, room string) *Client {
	return &Client{
		hub:  hub,
		room: room,
		send: make(chan []byte, 256),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		return received
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive message")
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.send:
		t.Fatal("client should not have received a message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)
	client := mockClient(hub, RoomFloor)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if !hub.rooms[RoomFloor][client] {
		t.Fatal("client not registered in floor room")
	}
}

func TestHubCleanupEmptyRoom(t *testing.T) {
	hub := startHub(t)
	client1 := mockClient(hub, RoomFloor)
	client2 := mockClient(hub, RoomFloor)

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)
	if n := hub.Clients(RoomFloor); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}

	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)
	if n := hub.Clients(RoomFloor); n != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", n)
	}

	hub.unregister <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[RoomFloor] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
}

func TestBroadcastToRoom_Isolation(t *testing.T) {
	hub := startHub(t)
	floor1 := mockClient(hub, RoomFloor)
	floor2 := mockClient(hub, RoomFloor)
	order := mockClient(hub, OrderRoom(7))

	hub.register <- floor1
	hub.register <- floor2
	hub.register <- order
	time.Sleep(10 * time.Millisecond)

	payload := json.RawMessage(`{"id":3,"status":"OCCUPIED"}`)
	hub.BroadcastToRoom(RoomFloor, Event{Type: "table.updated", Payload: payload})

	for _, c := range []*Client{floor1, floor2} {
		got := receive(t, c)
		if got.Type != "table.updated" || string(got.Payload) != string(payload) {
			t.Errorf("received %+v", got)
		}
	}
	expectNothing(t, order)
}

type paymentPayload struct {
	OrderID int64  `json:"order_id"`
	State   string `json:"state"`
}

func (p paymentPayload) PaymentOrderID() int64 { return p.OrderID }

func TestPublish_RoutesPaymentsToOrderRoom(t *testing.T) {
	hub := startHub(t)
	floor := mockClient(hub, RoomFloor)
	order7 := mockClient(hub, OrderRoom(7))
	order8 := mockClient(hub, OrderRoom(8))
	for _, c := range []*Client{floor, order7, order8} {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	hub.Publish("payment.updated", paymentPayload{OrderID: 7, State: "COMPLETED"})

	for _, c := range []*Client{floor, order7} {
		got := receive(t, c)
		var p paymentPayload
		if err := json.Unmarshal(got.Payload, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if got.Type != "payment.updated" || p.State != "COMPLETED" {
			t.Errorf("received %+v", got)
		}
	}
	expectNothing(t, order8)

	// Non-payment payloads stay on the floor room.
	hub.Publish("table.updated", map[string]interface{}{"id": 1})
	receive(t, floor)
	expectNothing(t, order7)
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := startHub(t)
	slow := &Client{hub: hub, room: RoomFloor, send: make(chan []byte)}
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToRoom(RoomFloor, Event{Type: "table.updated", Payload: json.RawMessage(`{}`)})
	time.Sleep(10 * time.Millisecond)

	if n := hub.Clients(RoomFloor); n != 0 {
		t.Fatalf("slow client should be dropped, %d left", n)
	}
	if _, ok := <-slow.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := mockClient(hub, RoomFloor)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	cancel()
	<-done
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed on shutdown")
	}
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, 1, "ayu", role, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func TestServeWS_Rejections(t *testing.T) {
	hub := startHub(t)
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"bad token", "?token=nope", http.StatusUnauthorized},
		{"customer on floor", "?token=" + token(t, "CUSTOMER"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/floor"+tt.query, nil)
			rec := httptest.NewRecorder()
			ServeWS(hub, testSecret, RoomFloor, StaffOnly, rec, req)
			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestOrderOwnerOrStaff(t *testing.T) {
	customerOf := func(orderID int64) (int64, bool) {
		if orderID == 11 {
			return 9, true
		}
		return 0, false
	}

	tests := []struct {
		name    string
		sess    auth.Session
		orderID int64
		want    bool
	}{
		{"staff any order", auth.Session{UserID: 1, Role: "STAFF"}, 12, true},
		{"admin any order", auth.Session{UserID: 2, Role: "ADMIN"}, 12, true},
		{"own order", auth.Session{UserID: 9, Role: "CUSTOMER"}, 11, true},
		{"someone else's order", auth.Session{UserID: 8, Role: "CUSTOMER"}, 11, false},
		{"unknown order", auth.Session{UserID: 9, Role: "CUSTOMER"}, 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OrderOwnerOrStaff(tt.orderID, customerOf)(tt.sess); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServeWS_ReceivesPublishedEvents(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, testSecret, RoomFloor, StaffOnly, w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token(t, "STAFF")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Clients(RoomFloor) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Publish("booking.updated", map[string]interface{}{"id": 4, "status": "CONFIRMED"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Event
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "booking.updated" {
		t.Errorf("type: got %q", got.Type)
	}
}
