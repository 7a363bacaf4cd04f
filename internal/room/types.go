package room

import (
	"github.com/viksharma04/ludo-stacked-backend/internal/cache"
	"github.com/viksharma04/ludo-stacked-backend/internal/durable"
)

// Snapshot is the authoritative view of a room handed to clients: meta
// plus every seat plus the version a client reconciles optimistic
// updates against (spec.md GLOSSARY "Snapshot").
type Snapshot struct {
	RoomID        string            `json:"room_id"`
	Code          string            `json:"code"`
	Status        string            `json:"status"`
	Visibility    string            `json:"visibility"`
	OwnerUserID   string            `json:"owner_user_id"`
	MaxPlayers    int               `json:"max_players"`
	RulesetID     string            `json:"ruleset_id"`
	RulesetConfig string            `json:"ruleset_config"`
	CreatedAtMs   int64             `json:"created_at_ms"`
	Version       int64             `json:"version"`
	Seats         []cache.SeatView  `json:"seats"`
}

func snapshotFrom(roomID string, meta cache.RoomMeta, seats []cache.SeatView) Snapshot {
	return Snapshot{
		RoomID: roomID, Code: meta.Code, Status: meta.Status, Visibility: meta.Visibility,
		OwnerUserID: meta.OwnerUserID, MaxPlayers: meta.MaxPlayers, RulesetID: meta.RulesetID,
		RulesetConfig: meta.RulesetConfig, CreatedAtMs: meta.CreatedAtMs, Version: meta.Version,
		Seats: seats,
	}
}

func metaFromRoom(r *durable.Room) cache.RoomMeta {
	return cache.RoomMeta{
		Status: string(r.Status), Visibility: r.Visibility, OwnerUserID: r.OwnerUserID,
		Code: r.Code, MaxPlayers: r.MaxPlayers, RulesetID: r.RulesetID,
		RulesetConfig: r.RulesetConfig, CreatedAtMs: r.CreatedAtMs, Version: r.Version,
	}
}

func seatViewFromDurable(s durable.Seat) cache.SeatView {
	sv := cache.SeatView{DisplayName: s.DisplayName, IsHost: s.IsHost, JoinedAtMs: s.JoinedAtMs}
	if s.UserID != nil {
		sv.UserID = *s.UserID
		sv.Connected = true
	}
	return sv
}
