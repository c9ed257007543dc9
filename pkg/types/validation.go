package types

import (
	"regexp"
	"strings"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var (
	idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	maxIDLength          = 64
	maxDisplayNameLength = 200
	maxTopicLength       = 200
	// MaxChatMessageLength bounds a single chat payload in bytes
	MaxChatMessageLength = 4096
)

// Validate checks a join request before it reaches the coordinator
func (r *JoinRequest) Validate() error {
	if !IsValidRoomID(r.RoomID) {
		return ErrInvalidRoomID
	}
	if !IsValidUserID(r.UserID) {
		return ErrInvalidUserID
	}
	name := strings.TrimSpace(r.DisplayName)
	if name == "" || len(name) > maxDisplayNameLength {
		return ErrInvalidDisplayName
	}
	r.DisplayName = name
	return nil
}

// Validate checks a lesson before it is created by the collaborator flow
func (l *Lesson) Validate() error {
	if !IsValidRoomID(l.ID) {
		return ErrInvalidRoomID
	}
	topic := strings.TrimSpace(l.Topic)
	if topic == "" || len(topic) > maxTopicLength {
		return ErrInvalidTopic
	}
	return nil
}

// Validate checks a chat message before it is persisted
func (m *Message) Validate() error {
	if m.Content == "" || len(m.Content) > MaxChatMessageLength {
		return ErrInvalidContent
	}
	if !IsValidUserID(m.OwnerID) {
		return ErrInvalidUserID
	}
	return nil
}

// IsValidRoomID checks a room (lesson) ID: 1-64 characters, alphanumeric plus underscore/hyphen
func IsValidRoomID(id string) bool {
	return isValidID(id)
}

// IsValidUserID checks a user ID with the same rules as room IDs
func IsValidUserID(id string) bool {
	return isValidID(id)
}

func isValidID(id string) bool {
	if len(id) < 1 || len(id) > maxIDLength {
		return false
	}
	return idRegex.MatchString(id)
}

// DisplayName joins first and last name the way the board shows authors
func DisplayName(firstName, lastName string) string {
	return strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
}
