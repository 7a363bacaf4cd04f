package cache

import (
	"context"
	"time"
)

// AddPresence adds userID to the room's presence set and refreshes the
// set's TTL, per spec.md §4.3.
func (c *Client) AddPresence(ctx context.Context, roomID, userID string) error {
	return c.guarded(ctx, "add_presence", func() error {
		key := presenceKey(roomID)
		if err := c.rdb.SAdd(ctx, key, userID).Err(); err != nil {
			return err
		}
		return c.rdb.Expire(ctx, key, presenceTTL*time.Second).Err()
	})
}

// RemovePresence drops userID from the room's presence set.
func (c *Client) RemovePresence(ctx context.Context, roomID, userID string) error {
	return c.guarded(ctx, "remove_presence", func() error {
		return c.rdb.SRem(ctx, presenceKey(roomID), userID).Err()
	})
}

// PresenceCount reports how many distinct users are currently present.
func (c *Client) PresenceCount(ctx context.Context, roomID string) (int64, error) {
	var n int64
	err := c.guarded(ctx, "presence_count", func() error {
		res, err := c.rdb.SCard(ctx, presenceKey(roomID)).Result()
		n = res
		return err
	})
	return n, err
}

// IncrConnCount increments a user's cross-process websocket connection
// counter (ws:user:{id}:conn_count), used to distinguish "last connection
// closing" from "one of several".
func (c *Client) IncrConnCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := c.guarded(ctx, "incr_conn_count", func() error {
		res, err := c.rdb.Incr(ctx, connCountKey(userID)).Result()
		n = res
		return err
	})
	return n, err
}

// DecrConnCount decrements a user's connection counter; per spec.md
// §4.3, when the result is ≤ 0 the key is deleted rather than left at
// a negative or zero value.
func (c *Client) DecrConnCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := c.guarded(ctx, "decr_conn_count", func() error {
		res, err := c.rdb.Decr(ctx, connCountKey(userID)).Result()
		if err != nil {
			return err
		}
		n = res
		if n <= 0 {
			return c.rdb.Del(ctx, connCountKey(userID)).Err()
		}
		return nil
	})
	return n, err
}
