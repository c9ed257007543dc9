// Package persist runs lesson writes in the background so live broadcast never
// waits on storage.
package persist

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"classboard/internal/metrics"
	"classboard/pkg/interfaces"
)

// Operation labels used in logs and metrics
const (
	OpCanvas  = "canvas"
	OpMessage = "message"
)

// Config holds queue configuration.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   256,
		TaskTimeout: 10 * time.Second,
	}
}

type task struct {
	op     string
	roomID string
	run    func(ctx context.Context) error
	marker chan struct{} // non-nil for Flush barriers
}

// Queue executes persistence tasks on a fixed set of workers.
// ARCHITECTURAL DISCOVERY: Tasks are sharded by room so writes for one room
// apply in submission order while different rooms proceed in parallel
type Queue struct {
	store   interfaces.LessonStore
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	shards  []chan task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewQueue creates a stopped queue. logger and m may be nil.
func NewQueue(store interfaces.LessonStore, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:   store,
		config:  cfg,
		logger:  logger.With("component", "persist"),
		metrics: m,
	}
}

// Start launches the workers.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrQueueAlreadyRunning
	}

	q.shards = make([]chan task, q.config.Workers)
	for i := range q.shards {
		q.shards[i] = make(chan task, q.config.QueueSize)
		q.wg.Add(1)
		go q.work(q.shards[i])
	}
	q.running = true

	q.logger.Info("persistence queue started", "workers", q.config.Workers)
	return nil
}

// Stop stops accepting tasks and waits for queued ones to finish or ctx to expire.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return ErrQueueNotRunning
	}
	q.running = false
	for _, shard := range q.shards {
		close(shard)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("persistence queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("persistence queue drain: %w", ctx.Err())
	}
}

// SaveCanvas schedules canvasData to become the lesson's stored canvas content.
func (q *Queue) SaveCanvas(roomID, canvasData string) error {
	return q.submit(task{
		op:     OpCanvas,
		roomID: roomID,
		run: func(ctx context.Context) error {
			lesson, err := q.store.FindLessonByID(ctx, roomID)
			if err != nil {
				return fmt.Errorf("find lesson: %w", err)
			}
			lesson.CanvasContent = canvasData
			if err := q.store.SaveLesson(ctx, lesson); err != nil {
				return fmt.Errorf("save lesson: %w", err)
			}
			return nil
		},
	})
}

// AppendMessage schedules a new message to be created and appended to the lesson.
func (q *Queue) AppendMessage(roomID, content, ownerID string) error {
	return q.submit(task{
		op:     OpMessage,
		roomID: roomID,
		run: func(ctx context.Context) error {
			lesson, err := q.store.FindLessonByID(ctx, roomID)
			if err != nil {
				return fmt.Errorf("find lesson: %w", err)
			}
			message := q.store.CreateMessage(content, ownerID)
			if err := q.store.SaveMessage(ctx, message); err != nil {
				return fmt.Errorf("save message: %w", err)
			}
			lesson.Messages = append(lesson.Messages, message.ID)
			if err := q.store.SaveLesson(ctx, lesson); err != nil {
				return fmt.Errorf("save lesson: %w", err)
			}
			return nil
		},
	})
}

// Flush blocks until every task submitted before the call has run.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.RLock()
	if !q.running {
		q.mu.RUnlock()
		return ErrQueueNotRunning
	}
	markers := make([]chan struct{}, len(q.shards))
	for i, shard := range q.shards {
		markers[i] = make(chan struct{})
		select {
		case shard <- task{marker: markers[i]}:
		case <-ctx.Done():
			q.mu.RUnlock()
			return ctx.Err()
		}
	}
	q.mu.RUnlock()

	for _, marker := range markers {
		select {
		case <-marker:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// submit never blocks; a full shard drops the task
func (q *Queue) submit(t task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.running {
		return ErrQueueNotRunning
	}

	select {
	case q.shards[q.shardFor(t.roomID)] <- t:
		return nil
	default:
		q.metrics.Persisted(t.op, ErrQueueFull)
		q.logger.Warn("persistence task dropped", "op", t.op, "room", t.roomID, "error", ErrQueueFull)
		return ErrQueueFull
	}
}

func (q *Queue) shardFor(roomID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *Queue) work(tasks <-chan task) {
	defer q.wg.Done()

	for t := range tasks {
		if t.marker != nil {
			close(t.marker)
			continue
		}
		q.execute(t)
	}
}

// execute runs one task; failures are logged and counted, never retried
func (q *Queue) execute(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.config.TaskTimeout)
	defer cancel()

	err := t.run(ctx)
	q.metrics.Persisted(t.op, err)
	if err != nil {
		q.logger.Error("persistence failed", "op", t.op, "room", t.roomID, "error", err)
		return
	}
	q.logger.Debug("persisted", "op", t.op, "room", t.roomID)
}
