package durable

import "time"

// RoomStatus mirrors the lifecycle states in spec.md §3/§4.4.
type RoomStatus string

const (
	StatusOpen          RoomStatus = "open"
	StatusReadyToStart  RoomStatus = "ready_to_start"
	StatusInGame        RoomStatus = "in_game"
	StatusClosed        RoomStatus = "closed"
)

// Room is the durable row backing a lobby. RulesetConfig is stored as
// opaque JSON text — the durable store never interprets it, only the
// engine does.
type Room struct {
	RoomID        string    `gorm:"column:room_id;primaryKey;type:uuid"`
	Code          string    `gorm:"column:code;uniqueIndex;size:6;not null"`
	Status        RoomStatus `gorm:"column:status;size:32;not null"`
	Visibility    string    `gorm:"column:visibility;size:16;not null"`
	OwnerUserID   string    `gorm:"column:owner_user_id;index;index:idx_owner_request,unique;not null"`
	MaxPlayers    int       `gorm:"column:max_players;not null"`
	RulesetID     string    `gorm:"column:ruleset_id;size:64;not null"`
	RulesetConfig string    `gorm:"column:ruleset_config;type:jsonb"`
	CreatedAtMs   int64     `gorm:"column:created_at_ms;not null"`
	Version       int64     `gorm:"column:version;not null;default:1"`
	RequestID     string    `gorm:"column:request_id;size:64;index:idx_owner_request,unique"`
}

func (Room) TableName() string { return "rooms" }

// Seat is a durable row for one slot of a Room. UserID is nullable — an
// empty seat has UserID == nil.
type Seat struct {
	RoomID      string    `gorm:"column:room_id;primaryKey;type:uuid"`
	SeatIndex   int       `gorm:"column:seat_index;primaryKey"`
	UserID      *string   `gorm:"column:user_id;index"`
	DisplayName string    `gorm:"column:display_name;size:128"`
	IsHost      bool      `gorm:"column:is_host;not null"`
	JoinedAtMs  int64     `gorm:"column:joined_at_ms"`
}

func (Seat) TableName() string { return "room_seats" }

// Profile is the durable row backing the out-of-core `/api/v1/profile`
// surface (§D): display name and avatar, keyed by the identity
// provider's subject claim.
type Profile struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:128"`
	DisplayName string    `gorm:"column:display_name;size:128"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// CreateRoomResult is the typed return of create_room/find_or_create_room.
type CreateRoomResult struct {
	RoomID    string
	Code      string
	SeatIndex int
	IsHost    bool
	// Cached reports whether this row (and its seat-0 occupant) already
	// had a cache mirror — false only for a genuinely new room, telling
	// the room service it must hydrate room:{id}:meta/seats itself.
	Cached bool
}
