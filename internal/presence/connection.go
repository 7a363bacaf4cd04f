// Package presence implements the connection manager (C5): the set of
// live client sockets, per-user and per-room indices, the heartbeat
// reaper, and distributed presence counting over the cache adapter.
package presence

import (
	"time"
)

// Socket is the minimal transport surface the manager needs, mirroring
// the teacher's wsConnection interface so tests can substitute a fake
// instead of a live *websocket.Conn.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Connection is an in-process record for a live socket (spec.md §3).
// Owned exclusively by the Manager; destroyed on disconnect.
type Connection struct {
	ID            string
	UserID        string
	RoomID        string
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	Authenticated bool

	socket Socket
	send   chan []byte
}
