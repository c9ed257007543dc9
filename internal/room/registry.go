package room

import (
	"slices"
	"strings"
	"sync"
	"time"

	"classboard/pkg/types"
)

// state is the registry-owned record behind a RoomState copy
type state struct {
	editors   []string
	viewers   []string
	snapshot  string
	createdAt time.Time
}

// Registry keeps live room state in process memory
// ARCHITECTURAL DISCOVERY: The coordinator loop is the only writer; the lock exists
// for the HTTP surface reading room stats concurrently
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*state
}

// NewRegistry creates an empty room registry
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*state)}
}

// Get returns a copy of the room state, if the room exists
func (r *Registry) Get(roomID string) (types.RoomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.rooms[roomID]
	if !ok {
		return types.RoomState{}, false
	}
	return s.copy(roomID), true
}

// CreateIfAbsent inserts an empty room. created is false when the room already existed.
func (r *Registry) CreateIfAbsent(roomID string) (types.RoomState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.rooms[roomID]; ok {
		return s.copy(roomID), false
	}
	s := &state{
		editors:   []string{},
		viewers:   []string{},
		createdAt: time.Now().UTC(),
	}
	r.rooms[roomID] = s
	return s.copy(roomID), true
}

// PromoteToEditor makes connID the room's single editor
func (r *Registry) PromoteToEditor(roomID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if s.has(connID) {
		return ErrAlreadyMember
	}
	if len(s.editors) > 0 {
		return ErrEditorExists
	}
	s.editors = append(s.editors, connID)
	return nil
}

// AddViewer appends connID to the room's viewers
func (r *Registry) AddViewer(roomID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if s.has(connID) {
		return ErrAlreadyMember
	}
	s.viewers = append(s.viewers, connID)
	return nil
}

// SetSnapshot overwrites the cached canvas snapshot
func (r *Registry) SetSnapshot(roomID, snapshot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	s.snapshot = snapshot
	return nil
}

// RemoveConnection drops connID from both lists. Unknown rooms and members are a no-op.
// FUNCTIONAL DISCOVERY: Membership is checked with an explicit index test so the
// member at position 0 is removed like any other
func (r *Registry) RemoveConnection(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if i := slices.Index(s.editors, connID); i >= 0 {
		s.editors = slices.Delete(s.editors, i, i+1)
	}
	if i := slices.Index(s.viewers, connID); i >= 0 {
		s.viewers = slices.Delete(s.viewers, i, i+1)
	}
}

// ReapIfEmpty deletes a room with no occupants and reports whether it did
func (r *Registry) ReapIfEmpty(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rooms[roomID]
	if !ok || len(s.editors)+len(s.viewers) > 0 {
		return false
	}
	delete(r.rooms, roomID)
	return true
}

// Stats summarises all rooms
func (r *Registry) Stats() types.RoomStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats types.RoomStats
	for _, s := range r.rooms {
		stats.Rooms++
		stats.Editors += len(s.editors)
		stats.Viewers += len(s.viewers)
		if len(s.editors)+len(s.viewers) == 0 {
			stats.EmptyRooms++
		}
	}
	stats.Connections = stats.Editors + stats.Viewers
	return stats
}

// List returns copies of every room ordered by room ID
func (r *Registry) List() []types.RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]types.RoomState, 0, len(r.rooms))
	for id, s := range r.rooms {
		rooms = append(rooms, s.copy(id))
	}
	slices.SortFunc(rooms, func(a, b types.RoomState) int {
		return strings.Compare(a.RoomID, b.RoomID)
	})
	return rooms
}

func (s *state) has(connID string) bool {
	return slices.Contains(s.editors, connID) || slices.Contains(s.viewers, connID)
}

func (s *state) copy(roomID string) types.RoomState {
	return types.RoomState{
		RoomID:         roomID,
		Editors:        slices.Clone(s.editors),
		Viewers:        slices.Clone(s.viewers),
		CanvasSnapshot: s.snapshot,
		CreatedAt:      s.createdAt,
	}
}
