package cache

import (
	"context"
	"strconv"
)

// RoomMeta mirrors the durable room row's non-seat fields, as stored in
// the room:{id}:meta hash (spec.md §6).
type RoomMeta struct {
	Status        string
	Visibility    string
	OwnerUserID   string
	Code          string
	MaxPlayers    int
	RulesetID     string
	RulesetConfig string
	CreatedAtMs   int64
	Version       int64
}

func (m RoomMeta) toFields() map[string]any {
	return map[string]any{
		"status": m.Status, "visibility": m.Visibility, "owner_user_id": m.OwnerUserID,
		"code": m.Code, "max_players": m.MaxPlayers, "ruleset_id": m.RulesetID,
		"ruleset_config": m.RulesetConfig, "created_at_ms": m.CreatedAtMs, "version": m.Version,
	}
}

func metaFromFields(f map[string]string) RoomMeta {
	maxPlayers, _ := strconv.Atoi(f["max_players"])
	createdAt, _ := strconv.ParseInt(f["created_at_ms"], 10, 64)
	version, _ := strconv.ParseInt(f["version"], 10, 64)
	return RoomMeta{
		Status: f["status"], Visibility: f["visibility"], OwnerUserID: f["owner_user_id"],
		Code: f["code"], MaxPlayers: maxPlayers, RulesetID: f["ruleset_id"],
		RulesetConfig: f["ruleset_config"], CreatedAtMs: createdAt, Version: version,
	}
}

// WriteMeta overwrites room:{id}:meta in full.
func (c *Client) WriteMeta(ctx context.Context, roomID string, meta RoomMeta) error {
	return c.guarded(ctx, "write_meta", func() error {
		return c.rdb.HSet(ctx, metaKey(roomID), meta.toFields()).Err()
	})
}

// GetMeta reads room:{id}:meta, returning ErrMiss if the hash is empty.
func (c *Client) GetMeta(ctx context.Context, roomID string) (RoomMeta, error) {
	var meta RoomMeta
	err := c.guarded(ctx, "get_meta", func() error {
		fields, err := c.rdb.HGetAll(ctx, metaKey(roomID)).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return ErrMiss
		}
		meta = metaFromFields(fields)
		return nil
	})
	return meta, err
}

// SetStatus updates only the status and version fields of room meta.
func (c *Client) SetStatus(ctx context.Context, roomID, status string, version int64) error {
	return c.guarded(ctx, "set_status", func() error {
		return c.rdb.HSet(ctx, metaKey(roomID), map[string]any{"status": status, "version": version}).Err()
	})
}

// BumpVersion increments room meta's version field and returns the new value.
func (c *Client) BumpVersion(ctx context.Context, roomID string) (int64, error) {
	var v int64
	err := c.guarded(ctx, "bump_version", func() error {
		res, err := c.rdb.HIncrBy(ctx, metaKey(roomID), "version", 1).Result()
		v = res
		return err
	})
	return v, err
}
