package room

import (
	"context"

	"github.com/viksharma04/ludo-stacked-backend/internal/cache"
	"github.com/viksharma04/ludo-stacked-backend/internal/durable"
)

// durableStore is the subset of *internal/durable.Adapter the room
// service needs. Declaring it here (rather than depending on the
// concrete type) keeps C4 unit-testable with an in-memory fake instead
// of a live Postgres, per spec.md §9's "explicit handles" design note.
type durableStore interface {
	CreateRoom(ctx context.Context, userID, requestID, visibility string, maxPlayers int, rulesetID, rulesetConfig string) (durable.CreateRoomResult, error)
	FindRoomByCode(ctx context.Context, code string) (*durable.Room, error)
	GetRoom(ctx context.Context, roomID string) (*durable.Room, error)
	GetSeats(ctx context.Context, roomID string) ([]durable.Seat, error)
	SeatExists(ctx context.Context, roomID, userID string) (bool, int, error)
	UpdateSeat(ctx context.Context, roomID string, seatIndex int, newUserID *string, displayName string) error
	SetStatus(ctx context.Context, roomID string, status durable.RoomStatus) error
}

// cacheStore is the subset of *internal/cache.Client the room service
// needs.
type cacheStore interface {
	GetMeta(ctx context.Context, roomID string) (cache.RoomMeta, error)
	WriteMeta(ctx context.Context, roomID string, meta cache.RoomMeta) error
	SetStatus(ctx context.Context, roomID, status string, version int64) error
	BumpVersion(ctx context.Context, roomID string) (int64, error)
	GetSeats(ctx context.Context, roomID string, maxPlayers int) ([]cache.SeatView, error)
	WriteSeat(ctx context.Context, roomID string, seatIndex int, seat cache.SeatView) error
	MutateSeatField(ctx context.Context, roomID string, seatIndex int, patch map[string]any) (cache.SeatView, error)
	AddPresence(ctx context.Context, roomID, userID string) error
	RemovePresence(ctx context.Context, roomID, userID string) error
	WriteGameState(ctx context.Context, roomID string, state any) error
	HasGameState(ctx context.Context, roomID string) (bool, error)
	DeleteRoom(ctx context.Context, roomID string) error
}
