package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// WriteGameState overwrites the room's game-state mirror
// (room:{id}:game) with the JSON encoding of state. This key isn't in
// spec.md §6's cache schema — it's the §D addition that lets
// start_game be idempotent against duplicate client sends without
// round-tripping to the durable store on every check.
func (c *Client) WriteGameState(ctx context.Context, roomID string, state any) error {
	return c.guarded(ctx, "write_game_state", func() error {
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return c.rdb.Set(ctx, gameKey(roomID), data, 0).Err()
	})
}

// GetGameState reads the raw JSON of the room's cached game state. It
// returns ErrMiss (not an error) if no game has started yet, so callers
// can distinguish "never started" from "cache unavailable".
func (c *Client) GetGameState(ctx context.Context, roomID string) ([]byte, error) {
	var data []byte
	err := c.guarded(ctx, "get_game_state", func() error {
		res, err := c.rdb.Get(ctx, gameKey(roomID)).Bytes()
		if err == redis.Nil {
			return ErrMiss
		}
		data = res
		return err
	})
	return data, err
}

// HasGameState reports whether a game-state mirror already exists for a
// room, without paying to deserialize it.
func (c *Client) HasGameState(ctx context.Context, roomID string) (bool, error) {
	var exists bool
	err := c.guarded(ctx, "has_game_state", func() error {
		n, err := c.rdb.Exists(ctx, gameKey(roomID)).Result()
		exists = n > 0
		return err
	})
	return exists, err
}
