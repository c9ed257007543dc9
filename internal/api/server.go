package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// RoomView is the read side of the room registry the API reports on
type RoomView interface {
	Get(roomID string) (types.RoomState, bool)
	List() []types.RoomState
	Stats() types.RoomStats
}

// ConnectionCounter avoids tight coupling to websocket.Registry
type ConnectionCounter interface {
	Count() int
}

// HistoryStore is the slice of the database the API reads
type HistoryStore interface {
	ListLessonMessages(ctx context.Context, lessonID string) ([]*types.Message, error)
	HealthCheck(ctx context.Context) error
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	rooms       RoomView
	store       HistoryStore
	connections ConnectionCounter
	logger      *slog.Logger
	startedAt   time.Time
	router      *http.ServeMux
	history     singleflight.Group // collapses concurrent reads of one lesson's log
}

// FUNCTIONAL DISCOVERY: Constructor initializes all dependencies and sets up routing
// Dependency injection pattern maintains architectural boundaries
func NewServer(rooms RoomView, store HistoryStore, connections ConnectionCounter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		rooms:       rooms,
		store:       store,
		connections: connections,
		logger:      logger.With("component", "api"),
		startedAt:   time.Now(),
		router:      http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// CORS and JSON middleware applied to all routes for web client compatibility
func (s *Server) setupRoutes() {
	s.handle("GET /health", s.healthCheck)
	s.handle("GET /api/rooms", s.listRooms)
	s.handle("GET /api/rooms/{id}", s.getRoom)
	s.handle("GET /api/lessons/{id}/messages", s.lessonMessages)
	s.handle("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {})
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.router.Handle(pattern, s.corsMiddleware(s.jsonMiddleware(fn)))
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RoomSummary is one entry of GET /api/rooms
type RoomSummary struct {
	RoomID       string    `json:"room_id"`
	Editors      int       `json:"editors"`
	Viewers      int       `json:"viewers"`
	SnapshotSize int       `json:"snapshot_size"`
	CreatedAt    time.Time `json:"created_at"`
}

type ListRoomsResponse struct {
	Rooms []RoomSummary   `json:"rooms"`
	Stats types.RoomStats `json:"stats"`
}

type RoomResponse struct {
	RoomID       string    `json:"room_id"`
	Editors      []string  `json:"editors"`
	Viewers      []string  `json:"viewers"`
	SnapshotSize int       `json:"snapshot_size"`
	CreatedAt    time.Time `json:"created_at"`
}

type MessagesResponse struct {
	LessonID string           `json:"lesson_id"`
	Messages []*types.Message `json:"messages"`
}

type HealthResponse struct {
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Database    string          `json:"database"`
	Connections int             `json:"connections"`
	Rooms       types.RoomStats `json:"rooms"`
	Uptime      string          `json:"uptime"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /api/rooms - live rooms with occupant counts
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.rooms.List()
	summaries := make([]RoomSummary, len(rooms))
	for i, room := range rooms {
		summaries[i] = RoomSummary{
			RoomID:       room.RoomID,
			Editors:      len(room.Editors),
			Viewers:      len(room.Viewers),
			SnapshotSize: len(room.CanvasSnapshot),
			CreatedAt:    room.CreatedAt,
		}
	}
	s.sendJSON(w, http.StatusOK, ListRoomsResponse{Rooms: summaries, Stats: s.rooms.Stats()})
}

// FUNCTIONAL DISCOVERY: GET /api/rooms/{id} - connection IDs per role; the snapshot itself is never exposed
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if !types.IsValidRoomID(roomID) {
		s.sendError(w, "Invalid room ID", http.StatusBadRequest)
		return
	}

	room, ok := s.rooms.Get(roomID)
	if !ok {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}

	s.sendJSON(w, http.StatusOK, RoomResponse{
		RoomID:       room.RoomID,
		Editors:      room.Editors,
		Viewers:      room.Viewers,
		SnapshotSize: len(room.CanvasSnapshot),
		CreatedAt:    room.CreatedAt,
	})
}

// FUNCTIONAL DISCOVERY: GET /api/lessons/{id}/messages - persisted chat log in append order
func (s *Server) lessonMessages(w http.ResponseWriter, r *http.Request) {
	lessonID := r.PathValue("id")
	if !types.IsValidRoomID(lessonID) {
		s.sendError(w, "Invalid lesson ID", http.StatusBadRequest)
		return
	}

	val, err, shared := s.history.Do(lessonID, func() (any, error) {
		return s.store.ListLessonMessages(r.Context(), lessonID)
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrLessonNotFound) {
			s.sendError(w, "Lesson not found", http.StatusNotFound)
			return
		}
		s.logger.Error("listing lesson messages failed", "lesson_id", lessonID, "error", err)
		s.sendError(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}

	if shared {
		s.logger.Debug("chat history read shared", "lesson_id", lessonID)
	}
	s.sendJSON(w, http.StatusOK, MessagesResponse{LessonID: lessonID, Messages: val.([]*types.Message)})
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.connections.Count(),
		Rooms:       s.rooms.Stats(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encoding response failed", "error", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
