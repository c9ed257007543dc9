package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// Functional Validation Tests - Frame codec

func TestFrame_NewFrameRoundTrip(t *testing.T) {
	frame, err := NewFrame(EventChatMessage, "hi", "Ann Lee")
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Failed to marshal frame: %v", err)
	}
	if string(data) != `{"event":"chat-message","args":["hi","Ann Lee"]}` {
		t.Errorf("Unexpected wire format: %s", data)
	}

	var decoded Frame
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal frame: %v", err)
	}
	payload, err := decoded.StringArg(0)
	if err != nil || payload != "hi" {
		t.Errorf("StringArg(0) = %q, %v; want \"hi\"", payload, err)
	}
}

func TestFrame_NoArgsEncodesEmptyArray(t *testing.T) {
	frame, err := NewFrame(EventJoinedAsEditor)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	data, _ := json.Marshal(frame)
	if string(data) != `{"event":"joined-as-editor","args":[]}` {
		t.Errorf("Unexpected wire format: %s", data)
	}
}

func TestFrame_StringArgErrors(t *testing.T) {
	var frame Frame
	if err := json.Unmarshal([]byte(`{"event":"send-canvas","args":[42]}`), &frame); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if _, err := frame.StringArg(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
	if _, err := frame.StringArg(1); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Expected ErrMissingArgument, got %v", err)
	}
}

func TestParseJoinRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"valid", `{"event":"join-room","args":["L1","Ann Lee","u1"]}`, nil},
		{"missing user", `{"event":"join-room","args":["L1","Ann Lee"]}`, ErrMissingArgument},
		{"bad room", `{"event":"join-room","args":["L 1","Ann Lee","u1"]}`, ErrInvalidRoomID},
		{"bad user", `{"event":"join-room","args":["L1","Ann Lee","u@1"]}`, ErrInvalidUserID},
		{"blank name", `{"event":"join-room","args":["L1","   ","u1"]}`, ErrInvalidDisplayName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frame Frame
			if err := json.Unmarshal([]byte(tt.raw), &frame); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			req, err := ParseJoinRequest(&frame)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseJoinRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && (req.RoomID != "L1" || req.DisplayName != "Ann Lee" || req.UserID != "u1") {
				t.Errorf("Unexpected request: %+v", req)
			}
		})
	}
}

// Functional Validation Tests - Validation rules

func TestIsValidRoomID(t *testing.T) {
	tests := []struct {
		id     string
		wantOk bool
	}{
		{"L1", true},
		{"lesson_42-a", true},
		{strings.Repeat("a", 64), true},
		{"", false},
		{strings.Repeat("a", 65), false},
		{"room 1", false},
		{"room/1", false},
	}

	for _, tt := range tests {
		if got := IsValidRoomID(tt.id); got != tt.wantOk {
			t.Errorf("IsValidRoomID(%q) = %v, want %v", tt.id, got, tt.wantOk)
		}
	}
}

func TestLesson_Validate(t *testing.T) {
	if err := (&Lesson{ID: "L1", Topic: "Fractions"}).Validate(); err != nil {
		t.Errorf("Expected valid lesson, got %v", err)
	}
	if err := (&Lesson{ID: "L1", Topic: " "}).Validate(); err != ErrInvalidTopic {
		t.Errorf("Expected ErrInvalidTopic, got %v", err)
	}
	if err := (&Lesson{ID: "", Topic: "Fractions"}).Validate(); err != ErrInvalidRoomID {
		t.Errorf("Expected ErrInvalidRoomID, got %v", err)
	}
}

func TestMessage_Validate(t *testing.T) {
	if err := (&Message{Content: "hi", OwnerID: "u1"}).Validate(); err != nil {
		t.Errorf("Expected valid message, got %v", err)
	}
	if err := (&Message{Content: "", OwnerID: "u1"}).Validate(); err != ErrInvalidContent {
		t.Errorf("Expected ErrInvalidContent, got %v", err)
	}
	long := strings.Repeat("x", MaxChatMessageLength+1)
	if err := (&Message{Content: long, OwnerID: "u1"}).Validate(); err != ErrInvalidContent {
		t.Errorf("Expected ErrInvalidContent for oversized content, got %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(" Ann ", "Lee"); got != "Ann Lee" {
		t.Errorf("DisplayName = %q, want \"Ann Lee\"", got)
	}
	if got := DisplayName("Ann", ""); got != "Ann" {
		t.Errorf("DisplayName = %q, want \"Ann\"", got)
	}
}

func TestRoomState_Helpers(t *testing.T) {
	state := RoomState{Editors: []string{"a"}, Viewers: []string{"b", "c"}}
	if state.Occupants() != 3 {
		t.Errorf("Occupants = %d, want 3", state.Occupants())
	}
	if !state.HasEditor() {
		t.Error("HasEditor should be true")
	}
	if (RoomState{}).HasEditor() {
		t.Error("Empty room should have no editor")
	}
}
