package session

import (
	"errors"
	"sync"
	"testing"

	"classboard/pkg/types"
)

func editorSession(connID string) types.ConnectionSession {
	return types.ConnectionSession{
		ConnectionID: connID,
		RoomID:       "lesson-1",
		DisplayName:  "Ann Lee",
		UserID:       "user-1",
		Role:         types.RoleEditor,
	}
}

func TestManager_SetOnce(t *testing.T) {
	m := NewManager()

	if err := m.Set(editorSession("c1")); err != nil {
		t.Fatalf("First Set failed: %v", err)
	}

	second := editorSession("c1")
	second.RoomID = "lesson-2"
	if err := m.Set(second); !errors.Is(err, ErrSessionAlreadySet) {
		t.Errorf("Expected ErrSessionAlreadySet, got %v", err)
	}

	got, ok := m.Get("c1")
	if !ok {
		t.Fatal("Session should exist")
	}
	if got.RoomID != "lesson-1" {
		t.Errorf("First session must be kept, got room %q", got.RoomID)
	}
	if got.JoinedAt.IsZero() {
		t.Error("Set should stamp JoinedAt")
	}
}

func TestManager_SetValidation(t *testing.T) {
	tests := []struct {
		name    string
		session types.ConnectionSession
	}{
		{"missing connection", types.ConnectionSession{RoomID: "r", Role: types.RoleViewer}},
		{"missing room", types.ConnectionSession{ConnectionID: "c", Role: types.RoleViewer}},
		{"bad role", types.ConnectionSession{ConnectionID: "c", RoomID: "r", Role: "owner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewManager().Set(tt.session); !errors.Is(err, ErrInvalidSession) {
				t.Errorf("Expected ErrInvalidSession, got %v", err)
			}
		})
	}
}

func TestManager_Discard(t *testing.T) {
	m := NewManager()
	_ = m.Set(editorSession("c1"))

	got, ok := m.Discard("c1")
	if !ok || got.ConnectionID != "c1" {
		t.Fatalf("Discard should return the session, got %+v %v", got, ok)
	}
	if _, ok := m.Discard("c1"); ok {
		t.Error("Second Discard should report false")
	}
	if _, ok := m.Get("c1"); ok {
		t.Error("Discarded session should be gone")
	}
	if m.Count() != 0 {
		t.Errorf("Expected 0 sessions, got %d", m.Count())
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	var successes sync.Map

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := m.Set(editorSession("shared")); err == nil {
				successes.Store(i, true)
			}
			_, _ = m.Get("shared")
		}(i)
	}
	wg.Wait()

	count := 0
	successes.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count != 1 {
		t.Errorf("Exactly one concurrent Set should win, got %d", count)
	}
}
