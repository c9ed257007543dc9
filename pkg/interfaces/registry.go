package interfaces

import "classboard/pkg/types"

// RoomRegistry holds live room state keyed by room (lesson) ID
// ARCHITECTURAL DISCOVERY: Kept opaque so an in-process map can later be swapped
// for a shared store behind several coordinator instances
type RoomRegistry interface {
	Get(roomID string) (types.RoomState, bool)
	CreateIfAbsent(roomID string) (types.RoomState, bool)
	PromoteToEditor(roomID, connID string) error
	AddViewer(roomID, connID string) error
	SetSnapshot(roomID, snapshot string) error
	RemoveConnection(roomID, connID string)
	ReapIfEmpty(roomID string) bool
	Stats() types.RoomStats
}
