package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// SeatView mirrors one seat's JSON object in the room:{id}:seats hash.
// An empty seat is represented by the zero value (UserID == "").
type SeatView struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Ready       bool   `json:"ready"`
	Connected   bool   `json:"connected"`
	IsHost      bool   `json:"is_host"`
	JoinedAtMs  int64  `json:"joined_at_ms,omitempty"`
}

func (s SeatView) empty() bool { return s.UserID == "" }

// mutateSeatScript performs a read-modify-write of one seat field under a
// single Lua invocation so concurrent toggles (ready, connected) never
// lose a write, per spec.md §4.3. ARGV[2] is a JSON object of field
// patches to merge into the seat's current JSON value (or {} if unset).
var mutateSeatScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
local obj = {}
if current and current ~= false then
  obj = cjson.decode(current)
end
local patch = cjson.decode(ARGV[2])
for k, v in pairs(patch) do
  obj[k] = v
end
local encoded = cjson.encode(obj)
redis.call('HSET', KEYS[1], ARGV[1], encoded)
return encoded
`)

// WriteSeat overwrites one seat field wholesale (used on initial hydrate
// and on seat assignment, where there is no prior value to merge).
func (c *Client) WriteSeat(ctx context.Context, roomID string, seatIndex int, seat SeatView) error {
	return c.guarded(ctx, "write_seat", func() error {
		data, err := json.Marshal(seat)
		if err != nil {
			return err
		}
		return c.rdb.HSet(ctx, seatsKey(roomID), seatField(seatIndex), data).Err()
	})
}

// GetSeats reads every seat field from room:{id}:seats, in seat-index
// order, filling gaps with empty SeatViews up to maxPlayers.
func (c *Client) GetSeats(ctx context.Context, roomID string, maxPlayers int) ([]SeatView, error) {
	seats := make([]SeatView, maxPlayers)
	err := c.guarded(ctx, "get_seats", func() error {
		fields, err := c.rdb.HGetAll(ctx, seatsKey(roomID)).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return ErrMiss
		}
		for i := 0; i < maxPlayers; i++ {
			raw, ok := fields[seatField(i)]
			if !ok || raw == "" || raw == "{}" {
				continue
			}
			var sv SeatView
			if err := json.Unmarshal([]byte(raw), &sv); err != nil {
				return err
			}
			seats[i] = sv
		}
		return nil
	})
	return seats, err
}

// MutateSeatField merges patch into one seat's JSON object atomically via
// mutateSeatScript. On script rejection (e.g. the target doesn't support
// EVAL, or NOSCRIPT after a flush) it falls back to a non-atomic
// read-modify-write, which is an acceptable degradation path per
// spec.md §4.3, not the default.
func (c *Client) MutateSeatField(ctx context.Context, roomID string, seatIndex int, patch map[string]any) (SeatView, error) {
	var result SeatView
	err := c.guarded(ctx, "mutate_seat", func() error {
		patchJSON, err := json.Marshal(patch)
		if err != nil {
			return err
		}
		encoded, err := mutateSeatScript.Run(ctx, c.rdb, []string{seatsKey(roomID)}, seatField(seatIndex), string(patchJSON)).Text()
		if err != nil {
			encoded, err = c.mutateSeatFieldFallback(ctx, roomID, seatIndex, patch)
			if err != nil {
				return err
			}
		}
		return json.Unmarshal([]byte(encoded), &result)
	})
	return result, err
}

// mutateSeatFieldFallback is the non-atomic degradation path: it is only
// reached when the Lua script itself fails to run (e.g. scripting
// disabled on the target), and callers accept the narrow race window
// that implies rather than losing the write entirely.
func (c *Client) mutateSeatFieldFallback(ctx context.Context, roomID string, seatIndex int, patch map[string]any) (string, error) {
	current, err := c.rdb.HGet(ctx, seatsKey(roomID), seatField(seatIndex)).Result()
	if err != nil && err != redis.Nil {
		return "", err
	}
	obj := map[string]any{}
	if current != "" {
		if err := json.Unmarshal([]byte(current), &obj); err != nil {
			return "", err
		}
	}
	for k, v := range patch {
		obj[k] = v
	}
	encoded, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	if err := c.rdb.HSet(ctx, seatsKey(roomID), seatField(seatIndex), encoded).Err(); err != nil {
		return "", err
	}
	return string(encoded), nil
}
