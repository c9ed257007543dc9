package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/types"
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newSocketPair returns the server side and client side of one live socket
func newSocketPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial test server: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server = <-serverSide:
	case <-time.After(2 * time.Second):
		t.Fatal("Server side of socket never arrived")
	}
	return server, client
}

// readFrame reads one frame from the client side
func readFrame(t *testing.T, client *websocket.Conn) types.Frame {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Invalid frame %s: %v", data, err)
	}
	return frame
}

func TestConnection_NewConnectionInitialization(t *testing.T) {
	server, _ := newSocketPair(t)

	conn := NewConnection(server, 0, 0)
	defer conn.Close()

	if conn.ID() == "" {
		t.Error("Connection should get an id")
	}
	if cap(conn.writeCh) != 100 {
		t.Errorf("Expected default write buffer of 100, got %d", cap(conn.writeCh))
	}

	other := NewConnection(server, 10, time.Second)
	defer other.Close()
	if other.ID() == conn.ID() {
		t.Error("Connection ids must be unique")
	}
}

func TestConnection_SendDeliversFrame(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConnection(server, 10, time.Second)
	defer conn.Close()

	frame, err := types.NewFrame(types.EventChatMessage, "hi", "Ann Lee")
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	if err := conn.Send(frame); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := readFrame(t, client)
	if got.Event != types.EventChatMessage {
		t.Errorf("Expected chat-message, got %s", got.Event)
	}
	if name, _ := got.StringArg(1); name != "Ann Lee" {
		t.Errorf("Expected display name arg, got %q", name)
	}
}

func TestConnection_SendBufferFull(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := &Connection{
		id:      "stalled",
		conn:    server,
		writeCh: make(chan []byte, 1),
	}
	conn.ctx, conn.cancel = context.WithCancel(context.Background())
	defer conn.Close()

	// No writer goroutine: the buffer fills after one frame
	if err := conn.SendRaw([]byte(`{}`)); err != nil {
		t.Fatalf("First send failed: %v", err)
	}
	if err := conn.SendRaw([]byte(`{}`)); !errors.Is(err, ErrSendBufferFull) {
		t.Errorf("Expected ErrSendBufferFull, got %v", err)
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, 10, time.Second)

	if err := conn.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Second close should be a no-op: %v", err)
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done should be closed after Close")
	}
}

func TestConnection_SendAfterClose(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, 10, time.Second)
	_ = conn.Close()

	if err := conn.SendRaw([]byte(`{}`)); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_ConcurrentSends(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConnection(server, 200, time.Second)
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = conn.SendRaw([]byte(`{"event":"chat-message","args":[]}`))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		readFrame(t, client)
	}
}
