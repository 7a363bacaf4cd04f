package durable

import "errors"

// Typed failures the adapter returns in place of raw gorm/postgres errors.
// Callers switch on these with errors.Is; the underlying cause is wrapped
// and only ever reaches a log line, never the wire.
var (
	ErrInternal      = errors.New("INTERNAL_ERROR")
	ErrRoomNotFound  = errors.New("ROOM_NOT_FOUND")
	ErrRoomFull      = errors.New("ROOM_FULL")
	ErrRoomClosed    = errors.New("ROOM_CLOSED")
	ErrRoomInGame    = errors.New("ROOM_IN_GAME")
	ErrCodeCollision = errors.New("CODE_COLLISION")
	ErrSeatTaken     = errors.New("SEAT_TAKEN")
)
