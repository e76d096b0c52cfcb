package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"healthdom/internal/websocket"
	"healthdom/pkg/types"
)

var upgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type peer struct {
	conn   *websocket.Connection
	client *gorilla.Conn
}

func newPeer(t *testing.T, userID string) *peer {
	t.Helper()

	serverConns := make(chan *gorilla.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade: %v", err)
			return
		}
		serverConns <- ws
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	var serverWS *gorilla.Conn
	select {
	case serverWS = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for server connection")
	}

	conn := websocket.NewConnection(serverWS, 2*time.Second, 16)
	t.Cleanup(func() { conn.Close() })
	if err := conn.SetIdentity(userID, types.RolePatient); err != nil {
		t.Fatalf("SetIdentity failed: %v", err)
	}
	return &peer{conn: conn, client: client}
}

func (p *peer) readText(t *testing.T) string {
	t.Helper()
	_ = p.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := p.client.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	return string(data)
}

// assertNoMessage verifies nothing arrives within the wait window.
func (p *peer) assertNoMessage(t *testing.T, wait time.Duration) {
	t.Helper()
	_ = p.client.SetReadDeadline(time.Now().Add(wait))
	if _, data, err := p.client.ReadMessage(); err == nil {
		t.Errorf("Expected no message, got %q", string(data))
	}
}

func TestDispatcher_NotifyOfflineUserDoesNotPanic(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	d := NewDispatcher(registry, zap.NewNop())

	d.Notify("999", "anyone there?")
}

func TestDispatcher_AppointmentScenario(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	d := NewDispatcher(registry, zap.NewNop())

	// Patient 42 is connected from two devices.
	tab := newPeer(t, "42")
	phone := newPeer(t, "42")
	if err := registry.Register("42", tab.conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register("42", phone.conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	const confirmation = "Your appointment with Doctor ID: 7 is confirmed!"
	d.Notify("42", confirmation)

	if got := tab.readText(t); got != confirmation {
		t.Errorf("Tab expected %q, got %q", confirmation, got)
	}
	if got := phone.readText(t); got != confirmation {
		t.Errorf("Phone expected %q, got %q", confirmation, got)
	}

	// Exactly once per connection: nothing further is in flight.
	tab.assertNoMessage(t, 200*time.Millisecond)

	// Drop one device; only the other receives subsequent notifications.
	registry.Unregister("42", tab.conn)
	_ = tab.conn.Close()

	d.Notify("42", confirmation)
	if got := phone.readText(t); got != confirmation {
		t.Errorf("Phone expected %q after disconnect, got %q", confirmation, got)
	}
}

func TestDispatcher_BroadcastReachesEveryone(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	d := NewDispatcher(registry, zap.NewNop())

	alice := newPeer(t, "1")
	bob := newPeer(t, "2")
	_ = registry.Register("1", alice.conn)
	_ = registry.Register("2", bob.conn)

	d.Broadcast("maintenance at midnight")

	if got := alice.readText(t); got != "maintenance at midnight" {
		t.Errorf("Alice expected broadcast, got %q", got)
	}
	if got := bob.readText(t); got != "maintenance at midnight" {
		t.Errorf("Bob expected broadcast, got %q", got)
	}
}

func TestDispatcher_NotifyTargetsOnlyTheUser(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	d := NewDispatcher(registry, zap.NewNop())

	target := newPeer(t, "1")
	other := newPeer(t, "2")
	_ = registry.Register("1", target.conn)
	_ = registry.Register("2", other.conn)

	d.Notify("1", "for your eyes only")

	if got := target.readText(t); got != "for your eyes only" {
		t.Errorf("Target expected message, got %q", got)
	}
	other.assertNoMessage(t, 200*time.Millisecond)
}
