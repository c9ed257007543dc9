package interfaces

import (
	"context"

	"classboard/pkg/types"
)

// LessonStore is the narrow view of the persistent store the coordinator needs
// ARCHITECTURAL DISCOVERY: Lessons and messages are owned by the store;
// the coordinator only ever holds their IDs while a room is live
type LessonStore interface {
	// FindLessonByID returns ErrLessonNotFound when no lesson has this ID
	FindLessonByID(ctx context.Context, id string) (*types.Lesson, error)

	// SaveLesson persists topic, canvas content and the ordered message list
	SaveLesson(ctx context.Context, lesson *types.Lesson) error

	// CreateMessage builds a new message with a server-side ID; it does not persist
	CreateMessage(content, ownerID string) *types.Message

	// SaveMessage persists a message created by CreateMessage
	SaveMessage(ctx context.Context, message *types.Message) error
}

// DatabaseManager is the full store surface used by the application shell
type DatabaseManager interface {
	LessonStore

	// CreateLesson inserts a lesson on behalf of the group-management flow
	CreateLesson(ctx context.Context, lesson *types.Lesson) error

	// ListLessonMessages returns the lesson's chat log in append order
	ListLessonMessages(ctx context.Context, lessonID string) ([]*types.Message, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
