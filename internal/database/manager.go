package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	dbconfig "classboard/pkg/database"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Manager implements the DatabaseManager interface on SQLite
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *slog.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

const writeQueueTimeout = 30 * time.Second

// NewManager opens the database and starts the writer goroutine. Migrations are
// applied separately through pkg/database.
func NewManager(config *dbconfig.Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With("component", "database"),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn("database write failed", "error", err)
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug("database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(writeQueueTimeout):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// CreateLesson inserts a new lesson. An empty ID is filled with a uuid.
func (m *Manager) CreateLesson(ctx context.Context, lesson *types.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	if lesson.Messages == nil {
		lesson.Messages = []string{}
	}
	if err := lesson.Validate(); err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO lessons (id, topic, canvas_content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, lesson.ID, lesson.Topic, lesson.CanvasContent, lesson.CreatedAt, lesson.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert lesson: %w", err)
		}
		return nil
	})
}

// FindLessonByID loads a lesson with its ordered message id list
func (m *Manager) FindLessonByID(ctx context.Context, id string) (*types.Lesson, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	row := m.db.QueryRowContext(ctx, `
		SELECT id, topic, canvas_content, created_at, updated_at
		FROM lessons
		WHERE id = ?
	`, id)

	var lesson types.Lesson
	err := row.Scan(&lesson.ID, &lesson.Topic, &lesson.CanvasContent, &lesson.CreatedAt, &lesson.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to query lesson: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT message_id FROM lesson_messages
		WHERE lesson_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	lesson.Messages = []string{}
	for rows.Next() {
		var messageID string
		if err := rows.Scan(&messageID); err != nil {
			return nil, fmt.Errorf("failed to scan lesson message: %w", err)
		}
		lesson.Messages = append(lesson.Messages, messageID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lesson messages: %w", err)
	}

	return &lesson, nil
}

// SaveLesson writes topic, canvas content and the message list of an existing lesson
// FUNCTIONAL DISCOVERY: The message list only ever grows, so positions already
// stored are left alone and new ones are appended with INSERT OR IGNORE
func (m *Manager) SaveLesson(ctx context.Context, lesson *types.Lesson) error {
	if err := lesson.Validate(); err != nil {
		return err
	}
	lesson.UpdatedAt = time.Now().UTC()

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		res, err := tx.ExecContext(ctx, `
			UPDATE lessons
			SET topic = ?, canvas_content = ?, updated_at = ?
			WHERE id = ?
		`, lesson.Topic, lesson.CanvasContent, lesson.UpdatedAt, lesson.ID)
		if err != nil {
			return fmt.Errorf("failed to update lesson: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrLessonNotFound
		}

		for position, messageID := range lesson.Messages {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO lesson_messages (lesson_id, position, message_id)
				VALUES (?, ?, ?)
			`, lesson.ID, position, messageID)
			if err != nil {
				return fmt.Errorf("failed to append lesson message: %w", err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit lesson save: %w", err)
		}
		return nil
	})
}

// CreateMessage builds a message with a fresh id; SaveMessage persists it
func (m *Manager) CreateMessage(content, ownerID string) *types.Message {
	return &types.Message{
		ID:        uuid.New().String(),
		Content:   content,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
}

// SaveMessage stores a message in the database
func (m *Manager) SaveMessage(ctx context.Context, message *types.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, content, owner_id, created_at)
			VALUES (?, ?, ?, ?)
		`, message.ID, message.Content, message.OwnerID, message.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// ListLessonMessages returns a lesson's chat log in append order
func (m *Manager) ListLessonMessages(ctx context.Context, lessonID string) ([]*types.Message, error) {
	var exists int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lessons WHERE id = ?", lessonID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson: %w", err)
	}
	if exists == 0 {
		return nil, interfaces.ErrLessonNotFound
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.owner_id, m.created_at
		FROM lesson_messages lm
		JOIN messages m ON m.id = lm.message_id
		WHERE lm.lesson_id = ?
		ORDER BY lm.position ASC
	`, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*types.Message{}
	for rows.Next() {
		var message types.Message
		if err := rows.Scan(&message.ID, &message.Content, &message.OwnerID, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &message)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lessons").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
