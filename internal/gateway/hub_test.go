package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"netwatch/internal/bus"
	"netwatch/internal/model"
	"netwatch/internal/store/memory"

	"github.com/gorilla/websocket"
)

type receivedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newGatewayFixture(t *testing.T) (*Hub, *bus.Bus, *memory.Store, string) {
	t.Helper()

	store := memory.New(0)
	b := bus.New()
	hub := NewHub(store, nil)
	unsub := hub.Attach(b)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		unsub()
		hub.Shutdown()
		srv.Close()
	})

	return hub, b, store, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial gateway: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) receivedMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg receivedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d clients, have %d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_InitialSnapshot(t *testing.T) {
	_, _, store, url := newGatewayFixture(t)
	ctx := context.Background()

	// 1. Seed 12 logs, one resolved and one unresolved alert, one metric
	for i := 0; i < 12; i++ {
		store.CreateLog(ctx, &model.TrafficLog{SourceIP: "10.0.0.1", Protocol: "TCP", Action: model.ActionAllow})
	}
	resolved, _ := store.CreateAlert(ctx, &model.Alert{Severity: model.SeverityLow, Type: "T", Title: "old"})
	store.ResolveAlert(ctx, resolved.ID)
	store.CreateAlert(ctx, &model.Alert{Severity: model.SeverityHigh, Type: "T", Title: "live"})
	store.CreateMetric(ctx, &model.TrafficMetric{TotalTraffic: "12345", ActiveConnections: 3})

	// 2. Connect and read the first push
	conn := dial(t, url)
	msg := readMessage(t, conn)
	if msg.Type != MessageInitialData {
		t.Fatalf("first message must be %q, got %q", MessageInitialData, msg.Type)
	}

	var data struct {
		Stats  *model.DashboardStats `json:"stats"`
		Alerts []*model.Alert        `json:"alerts"`
		Logs   []*model.TrafficLog   `json:"logs"`
	}
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}

	// 3. Stats come from the latest metric plus the live alert count
	if data.Stats == nil || data.Stats.TotalTraffic != "12345" {
		t.Errorf("snapshot stats missing latest metric figures: %+v", data.Stats)
	}
	if data.Stats.AlertCount != 1 {
		t.Errorf("expected alertCount 1, got %d", data.Stats.AlertCount)
	}

	// 4. Alerts contain only unresolved records
	if len(data.Alerts) != 1 || data.Alerts[0].Title != "live" {
		t.Errorf("snapshot must carry only unresolved alerts, got %d", len(data.Alerts))
	}

	// 5. Logs are capped at 10, newest first
	if len(data.Logs) != 10 {
		t.Fatalf("expected 10 snapshot logs, got %d", len(data.Logs))
	}
	for i := 1; i < len(data.Logs); i++ {
		if data.Logs[i].ID > data.Logs[i-1].ID {
			t.Fatalf("snapshot logs not newest-first at index %d", i)
		}
	}
}

func TestHub_EventDeliveryOrder(t *testing.T) {
	_, b, _, url := newGatewayFixture(t)

	conn := dial(t, url)

	// Drain the snapshot so subsequent reads are pure event traffic.
	if msg := readMessage(t, conn); msg.Type != MessageInitialData {
		t.Fatalf("expected initial snapshot, got %q", msg.Type)
	}

	// Publish a log then an alert; the client must see them in that order.
	b.Publish(model.LogCreated(&model.TrafficLog{ID: 7, SourceIP: "10.0.0.9", Protocol: "DNS", Action: model.ActionAllow}))
	b.Publish(model.AlertCreated(&model.Alert{ID: 8, Severity: model.SeverityMedium, Type: "T", Title: "after"}))

	first := readMessage(t, conn)
	if first.Type != MessageNetworkLog {
		t.Fatalf("expected %q first, got %q", MessageNetworkLog, first.Type)
	}
	var gotLog model.TrafficLog
	if err := json.Unmarshal(first.Data, &gotLog); err != nil || gotLog.ID != 7 {
		t.Fatalf("unexpected log payload: %s", first.Data)
	}

	second := readMessage(t, conn)
	if second.Type != MessageAlert {
		t.Fatalf("expected %q second, got %q", MessageAlert, second.Type)
	}
}

func TestHub_BroadcastFanOut(t *testing.T) {
	hub, b, _, url := newGatewayFixture(t)

	// 1. Two clients stay open, a third closes before publish
	c1 := dial(t, url)
	c2 := dial(t, url)
	c3 := dial(t, url)
	waitForClients(t, hub, 3)

	readMessage(t, c1)
	readMessage(t, c2)
	readMessage(t, c3)

	c3.Close()
	waitForClients(t, hub, 2)

	// 2. One published event
	b.Publish(model.MetricsSnapshot(&model.TrafficMetric{TotalTraffic: "99"}))

	// 3. Both open clients receive exactly one copy
	for _, conn := range []*websocket.Conn{c1, c2} {
		msg := readMessage(t, conn)
		if msg.Type != MessageMetricsUpdate {
			t.Fatalf("expected %q, got %q", MessageMetricsUpdate, msg.Type)
		}
	}

	// No extra copies are waiting.
	c1.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := c1.ReadMessage(); err == nil {
		t.Fatal("client received more than one copy of the event")
	}
}

func TestHub_SubscribeIsBookkeepingOnly(t *testing.T) {
	_, b, _, url := newGatewayFixture(t)

	conn := dial(t, url)
	readMessage(t, conn) // snapshot

	// Subscribing to an arbitrary channel must not filter anything.
	sub, _ := json.Marshal(map[string]string{"type": MessageSubscribe, "channel": "alerts-only"})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	b.Publish(model.LogCreated(&model.TrafficLog{SourceIP: "10.0.0.2", Protocol: "TCP", Action: model.ActionDeny}))

	msg := readMessage(t, conn)
	if msg.Type != MessageNetworkLog {
		t.Fatalf("subscribed client must still receive every event, got %q", msg.Type)
	}
}

func TestEncodeEvent_UnknownKind(t *testing.T) {
	if _, ok := encodeEvent(model.Event{Type: "unknown.kind"}); ok {
		t.Fatal("unknown event kinds must not encode")
	}
}
