package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classboard/internal/api"
	"classboard/internal/app"
	"classboard/internal/config"
	"classboard/internal/logging"
	"classboard/pkg/types"
)

// client wraps one browser-side socket. A single reader goroutine feeds
// frames; gorilla read deadlines are sticky, so the socket is never read elsewhere.
type client struct {
	t      *testing.T
	conn   *websocket.Conn
	frames chan types.Frame
}

func startApp(t *testing.T) *app.Application {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "classboard.db")

	application, err := app.NewApplication(cfg, logging.New(io.Discard, "error", "json"))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return application
}

func dial(t *testing.T, application *app.Application) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+application.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &client{t: t, conn: conn, frames: make(chan types.Frame, 64)}
	go func() {
		defer close(c.frames)
		for {
			var frame types.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			c.frames <- frame
		}
	}()
	return c
}

func (c *client) send(event string, args ...string) {
	c.t.Helper()
	if args == nil {
		args = []string{}
	}
	if err := c.conn.WriteJSON(map[string]interface{}{"event": event, "args": args}); err != nil {
		c.t.Fatalf("Write %s failed: %v", event, err)
	}
}

// expect reads the next frame and checks its event and string args
func (c *client) expect(event string, args ...string) {
	c.t.Helper()
	var frame types.Frame
	select {
	case f, ok := <-c.frames:
		if !ok {
			c.t.Fatalf("Waiting for %s: connection closed", event)
		}
		frame = f
	case <-time.After(3 * time.Second):
		c.t.Fatalf("Timed out waiting for %s", event)
	}
	if frame.Event != event {
		c.t.Fatalf("Expected %s, got %s", event, frame.Event)
	}
	if len(frame.Args) != len(args) {
		c.t.Fatalf("%s: expected %d args, got %d", event, len(args), len(frame.Args))
	}
	for i, want := range args {
		got, err := frame.StringArg(i)
		if err != nil || got != want {
			c.t.Errorf("%s arg %d: expected %q, got %q (%v)", event, i, want, got, err)
		}
	}
}

func (c *client) expectSilence() {
	c.t.Helper()
	select {
	case frame, ok := <-c.frames:
		if ok {
			c.t.Errorf("Expected no frame, got %+v", frame)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func settle(t *testing.T, application *app.Application) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := application.Coordinator().Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := application.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func getRoom(t *testing.T, application *app.Application, roomID string) (api.RoomResponse, int) {
	t.Helper()
	resp, err := http.Get("http://" + application.Addr() + "/api/rooms/" + roomID)
	if err != nil {
		t.Fatalf("GET room failed: %v", err)
	}
	defer resp.Body.Close()
	var room api.RoomResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
			t.Fatalf("Decode room failed: %v", err)
		}
	}
	return room, resp.StatusCode
}

// TestClassroomWalkthrough drives a stored lesson through editor, viewers,
// canvas relay, chat and an editor leaving
func TestClassroomWalkthrough(t *testing.T) {
	application := startApp(t)
	ctx := context.Background()

	lesson := &types.Lesson{ID: "L1", Topic: "Fractions", CanvasContent: "<svg>stored</svg>"}
	if err := application.Store().CreateLesson(ctx, lesson); err != nil {
		t.Fatalf("CreateLesson failed: %v", err)
	}

	// First joiner edits and receives the stored canvas
	ada := dial(t, application)
	ada.send(types.EventJoinRoom, "L1", "Ada Lovelace", "u1")
	ada.expect(types.EventJoinedAsEditor)
	ada.expect(types.EventCanvasForEditors, "<svg>stored</svg>")

	bob := dial(t, application)
	bob.send(types.EventJoinRoom, "L1", "Bob Babbage", "u2")
	bob.expect(types.EventJoinedAsViewer)
	bob.expect(types.EventCanvasForViewers, "<svg>stored</svg>")

	// Canvas relays to viewers and never echoes to the sender
	ada.send(types.EventSendCanvas, "<svg>v2</svg>")
	bob.expect(types.EventCanvasForViewers, "<svg>v2</svg>")
	ada.expectSilence()

	// Chat reaches everyone including the sender, tagged with the display name
	bob.send(types.EventSendMessage, "hello")
	ada.expect(types.EventChatMessage, "hello", "Bob Babbage")
	bob.expect(types.EventChatMessage, "hello", "Bob Babbage")

	// Empty chat is rejected back to its sender only
	bob.send(types.EventSendMessage, "")
	bob.expect(types.EventError, "invalid_message")
	ada.expectSilence()

	settle(t, application)

	stored, err := application.Store().FindLessonByID(ctx, "L1")
	if err != nil {
		t.Fatalf("FindLessonByID failed: %v", err)
	}
	if stored.CanvasContent != "<svg>v2</svg>" {
		t.Errorf("Expected persisted canvas, got %q", stored.CanvasContent)
	}
	messages, err := application.Store().ListLessonMessages(ctx, "L1")
	if err != nil {
		t.Fatalf("ListLessonMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hello" || messages[0].OwnerID != "u2" {
		t.Fatalf("Unexpected persisted messages %+v", messages)
	}

	// Editor leaves; nobody is promoted and the room keeps its snapshot
	ada.conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for {
		settle(t, application)
		room, code := getRoom(t, application, "L1")
		if code == http.StatusOK && len(room.Editors) == 0 {
			if len(room.Viewers) != 1 {
				t.Errorf("Expected one viewer, got %v", room.Viewers)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Editor disconnect never reached the coordinator")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cara := dial(t, application)
	cara.send(types.EventJoinRoom, "L1", "Cara", "u3")
	cara.expect(types.EventJoinedAsViewer)
	cara.expect(types.EventCanvasForViewers, "<svg>v2</svg>")

	// Viewers may also draw; the other viewer hears it, the sender does not
	cara.send(types.EventSendCanvas, "<svg>v3</svg>")
	bob.expect(types.EventCanvasForViewers, "<svg>v3</svg>")
	cara.expectSilence()
}

func TestJoinUnknownLesson(t *testing.T) {
	application := startApp(t)

	c := dial(t, application)
	c.send(types.EventJoinRoom, "ghost", "Nobody", "u9")
	c.expect(types.EventJoinedAsEditor)
	c.expect(types.EventCanvasForEditors, "")

	// A second join on the same connection is refused
	c.send(types.EventJoinRoom, "other", "Nobody", "u9")
	c.expect(types.EventError, "already_joined")

	// Chat for a lesson the store does not know is relayed but not persisted
	c.send(types.EventSendMessage, "anyone?")
	c.expect(types.EventChatMessage, "anyone?", "Nobody")
	settle(t, application)

	resp, err := http.Get("http://" + application.Addr() + "/api/lessons/ghost/messages")
	if err != nil {
		t.Fatalf("GET messages failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown lesson, got %d", resp.StatusCode)
	}
}

func TestEventsBeforeJoinIgnored(t *testing.T) {
	application := startApp(t)

	c := dial(t, application)
	c.send(types.EventSendCanvas, "<svg/>")
	c.send(types.EventSendMessage, "early")
	c.expectSilence()

	c.send(types.EventJoinRoom, "", "Bad", "u1")
	c.expect(types.EventError, "invalid_join")

	settle(t, application)
	if _, code := getRoom(t, application, "L1"); code != http.StatusNotFound {
		t.Errorf("No room should exist, got %d", code)
	}
}
