package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dronedash/relayhub/internal/protocol"
	"github.com/dronedash/relayhub/internal/registry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T) (*Hub, *registry.Registry, *httptest.Server) {
	t.Helper()
	reg := registry.New()
	h := New(DefaultConfig(), reg, discardLogger())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, reg, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func countRole(reg *registry.Registry, role registry.Role) int {
	n := 0
	reg.ForEach(registry.RoleIn(role), func(registry.Conn) { n++ })
	return n
}

// declare sends client-ready and waits until the registry reflects it.
func declare(t *testing.T, conn *websocket.Conn, reg *registry.Registry, role registry.Role) {
	t.Helper()
	before := countRole(reg, role)
	send(t, conn, `{"type":"client-ready","clientType":"`+string(role)+`"}`)
	waitFor(t, func() bool { return countRole(reg, role) > before }, "role "+string(role)+" declared")
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	env, err := protocol.Parse(raw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	return env
}

// expectSilence asserts that no frame arrives within the window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no delivery, got %s", raw)
	}
}

func TestChatBroadcast(t *testing.T) {
	_, reg, srv := newTestHub(t)

	viewer := dial(t, srv)
	monitor := dial(t, srv)
	sender := dial(t, srv)
	speaker := dial(t, srv)

	declare(t, viewer, reg, registry.RoleViewer)
	declare(t, monitor, reg, registry.RoleMonitor)
	declare(t, sender, reg, registry.RoleSender)
	declare(t, speaker, reg, registry.RoleRestaurant)

	send(t, speaker, `{"type":"chat-message","data":{"content":"order up","sender":"kitchen"}}`)

	for name, conn := range map[string]*websocket.Conn{"viewer": viewer, "monitor": monitor} {
		env := readEnvelope(t, conn)
		if env.Type != protocol.TypeChatMessage {
			t.Errorf("%s got type %q, want %q", name, env.Type, protocol.TypeChatMessage)
		}

		var data map[string]any
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("%s data: %v", name, err)
		}
		if data["content"] != "order up" {
			t.Errorf("%s content = %v, want %q", name, data["content"], "order up")
		}
		if data["processed"] != true {
			t.Errorf("%s processed = %v, want true", name, data["processed"])
		}
		st, _ := data["serverTime"].(string)
		if _, err := time.Parse(time.RFC3339, st); err != nil {
			t.Errorf("%s serverTime = %q, want RFC3339", name, st)
		}
	}

	// Neither the sender-role client nor the speaker itself hears the chat.
	expectSilence(t, sender)
	expectSilence(t, speaker)
}

func TestVideoFrameSenderToViewer(t *testing.T) {
	_, reg, srv := newTestHub(t)

	viewer := dial(t, srv)
	sender := dial(t, srv)
	monitor := dial(t, srv)

	declare(t, viewer, reg, registry.RoleViewer)
	declare(t, sender, reg, registry.RoleSender)
	declare(t, monitor, reg, registry.RoleMonitor)

	send(t, sender, `{"type":"video-frame","data":[1,2,3]}`)

	env := readEnvelope(t, viewer)
	if env.Type != protocol.TypeVideoFrame {
		t.Fatalf("viewer got type %q, want %q", env.Type, protocol.TypeVideoFrame)
	}
	var frame []int
	if err := json.Unmarshal(env.Data, &frame); err != nil {
		t.Fatalf("frame data: %v", err)
	}
	if len(frame) != 3 || frame[0] != 1 || frame[1] != 2 || frame[2] != 3 {
		t.Errorf("frame = %v, want [1 2 3]", frame)
	}

	// Exactly one frame for the viewer, nothing for anyone else.
	expectSilence(t, viewer)
	expectSilence(t, monitor)
	expectSilence(t, sender)
}

func TestVideoFrameFromNonSenderDropped(t *testing.T) {
	h, reg, srv := newTestHub(t)

	viewer := dial(t, srv)
	impostor := dial(t, srv)

	declare(t, viewer, reg, registry.RoleViewer)
	declare(t, impostor, reg, registry.RoleMonitor)

	send(t, impostor, `{"type":"video-frame","data":[9,9,9]}`)

	waitFor(t, func() bool { return h.Stats().Received >= 3 }, "frame dispatched")
	expectSilence(t, viewer)

	if got := h.Stats().FramesRelayed; got != 0 {
		t.Errorf("FramesRelayed = %d, want 0", got)
	}
}

func TestDashboardDataViewersOnly(t *testing.T) {
	_, reg, srv := newTestHub(t)

	viewer := dial(t, srv)
	monitor := dial(t, srv)
	source := dial(t, srv)

	declare(t, viewer, reg, registry.RoleViewer)
	declare(t, monitor, reg, registry.RoleMonitor)
	declare(t, source, reg, registry.RoleSender)

	send(t, source, `{"type":"dashboard-data","timestamp":1700000000000,"data":{"cpu":42}}`)

	env := readEnvelope(t, viewer)
	if env.Type != protocol.TypeDashboardData {
		t.Fatalf("viewer got type %q, want %q", env.Type, protocol.TypeDashboardData)
	}
	// Pass-through is verbatim, original timestamp included.
	if env.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d, want 1700000000000", env.Timestamp)
	}

	expectSilence(t, monitor)
	expectSilence(t, source)
}

func TestLocalOrderFlow(t *testing.T) {
	_, reg, srv := newTestHub(t)

	submitter := dial(t, srv)
	restaurant := dial(t, srv)
	monitor := dial(t, srv)
	viewer := dial(t, srv)

	declare(t, submitter, reg, registry.RoleViewer)
	declare(t, restaurant, reg, registry.RoleRestaurant)
	declare(t, monitor, reg, registry.RoleMonitor)
	declare(t, viewer, reg, registry.RoleViewer)

	send(t, submitter, `{"type":"order-submit","data":{"restaurant":"Dragon Noodles","items":["ramen"]}}`)

	conf := readEnvelope(t, submitter)
	if conf.Type != protocol.TypeOrderConfirmation {
		t.Fatalf("submitter got type %q, want %q", conf.Type, protocol.TypeOrderConfirmation)
	}
	var confData map[string]any
	if err := json.Unmarshal(conf.Data, &confData); err != nil {
		t.Fatalf("confirmation data: %v", err)
	}
	orderID, _ := confData["orderId"].(string)
	if !strings.HasPrefix(orderID, "ORD") {
		t.Errorf("orderId = %q, want ORD prefix", orderID)
	}
	if confData["status"] != "received" {
		t.Errorf("status = %v, want %q", confData["status"], "received")
	}
	if confData["restaurant"] != "Dragon Noodles" {
		t.Errorf("restaurant = %v, want %q", confData["restaurant"], "Dragon Noodles")
	}

	for name, conn := range map[string]*websocket.Conn{"restaurant": restaurant, "monitor": monitor} {
		env := readEnvelope(t, conn)
		if env.Type != protocol.TypeOrderStatus {
			t.Errorf("%s got type %q, want %q", name, env.Type, protocol.TypeOrderStatus)
		}
	}

	// Other viewers are not part of the order flow.
	expectSilence(t, viewer)
}

// fakeUpstream records forwarded orders.
type fakeUpstream struct {
	orders chan json.RawMessage
}

func (f *fakeUpstream) Connected() bool { return true }
func (f *fakeUpstream) SubmitOrder(senderID string, data json.RawMessage) error {
	f.orders <- data
	return nil
}

func TestBridgedOrderForwardsUpstream(t *testing.T) {
	h, reg, srv := newTestHub(t)
	up := &fakeUpstream{orders: make(chan json.RawMessage, 1)}
	h.SetUpstream(up)

	submitter := dial(t, srv)
	declare(t, submitter, reg, registry.RoleRestaurant)

	send(t, submitter, `{"type":"order-submit","data":{"items":["tea"]}}`)

	select {
	case data := <-up.orders:
		var order map[string]any
		if err := json.Unmarshal(data, &order); err != nil {
			t.Fatalf("order payload: %v", err)
		}
		items, _ := order["items"].([]any)
		if len(items) != 1 || items[0] != "tea" {
			t.Errorf("items = %v, want [tea]", order["items"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("order never reached upstream")
	}

	// Backend-authoritative mode: no local confirmation.
	expectSilence(t, submitter)
}

func TestUnknownTypeKeepsConnectionOpen(t *testing.T) {
	h, reg, srv := newTestHub(t)

	conn := dial(t, srv)
	send(t, conn, `{"type":"telemetry-v2","data":{}}`)

	waitFor(t, func() bool { return h.Stats().Unknown == 1 }, "unknown counter")

	// The connection still works afterwards.
	declare(t, conn, reg, registry.RoleViewer)
}

func TestParseErrorKeepsConnectionOpen(t *testing.T) {
	h, reg, srv := newTestHub(t)

	conn := dial(t, srv)
	send(t, conn, `{"type":`)

	waitFor(t, func() bool { return h.Stats().ParseErrors == 1 }, "parse error counter")

	declare(t, conn, reg, registry.RoleViewer)
}

func TestDisconnectRemovesRegistration(t *testing.T) {
	_, reg, srv := newTestHub(t)

	a := dial(t, srv)
	b := dial(t, srv)
	dial(t, srv)

	waitFor(t, func() bool { return reg.Len() == 3 }, "3 registrations")

	a.Close()
	b.Close()

	waitFor(t, func() bool { return reg.Len() == 1 }, "teardown to 1 registration")
}

func TestBroadcastReachesAllRoles(t *testing.T) {
	h, reg, srv := newTestHub(t)

	viewer := dial(t, srv)
	monitor := dial(t, srv)
	undeclared := dial(t, srv)

	declare(t, viewer, reg, registry.RoleViewer)
	declare(t, monitor, reg, registry.RoleMonitor)
	waitFor(t, func() bool { return reg.Len() == 3 }, "3 registrations")

	data, err := encodeEnvelope(protocol.TypeServerStatus, map[string]bool{"remoteServerConnected": false})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if got := h.Broadcast("", registry.Any, staticPayload(data)); got != 3 {
		t.Fatalf("Broadcast delivered %d, want 3", got)
	}

	for name, conn := range map[string]*websocket.Conn{
		"viewer": viewer, "monitor": monitor, "undeclared": undeclared,
	} {
		env := readEnvelope(t, conn)
		if env.Type != protocol.TypeServerStatus {
			t.Errorf("%s got type %q, want %q", name, env.Type, protocol.TypeServerStatus)
		}
	}
}
