package room

import "errors"

// Errors the room service can return, beyond what it passes through
// unchanged from internal/durable and internal/cache. Values match the
// stable error-code taxonomy of spec.md §7.
var (
	ErrNotHost          = errors.New("NOT_HOST")
	ErrNotSeated        = errors.New("NOT_SEATED")
	ErrInvalidRoomState = errors.New("INVALID_ROOM_STATE")
	ErrPlayersNotReady  = errors.New("PLAYERS_NOT_READY")
	ErrGameAlreadyStarted = errors.New("GAME_ALREADY_STARTED")
)
