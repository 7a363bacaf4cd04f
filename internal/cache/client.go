package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/viksharma04/ludo-stacked-backend/internal/logging"
	"github.com/viksharma04/ludo-stacked-backend/internal/metrics"
)

// Client is the cache adapter (C3), wrapping a *redis.Client behind the
// same circuit-breaker degradation pattern the teacher's Redis bus uses.
type Client struct {
	rdb *redis.Client
	cb  *gobreaker.CircuitBreaker
}

// New builds a Client against an already-connected go-redis client (or a
// miniredis-backed one in tests).
func New(rdb *redis.Client) *Client {
	st := gobreaker.Settings{
		Name:        "cache",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues("cache").Set(circuitStateValue(to))
		},
	}
	return &Client{rdb: rdb, cb: gobreaker.NewCircuitBreaker(st)}
}

func circuitStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func (c *Client) guarded(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	_, err := c.cb.Execute(func() (any, error) { return nil, fn() })
	metrics.RedisOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		status := "error"
		if isOpenBreaker(err) {
			metrics.CircuitBreakerFailures.WithLabelValues("cache").Inc()
			logging.Warn(ctx, "cache circuit open, degrading", zap.String("op", op))
			status = "circuit_open"
			metrics.RedisOperationsTotal.WithLabelValues(op, status).Inc()
			return fmt.Errorf("%s: %w", op, ErrUnavailable)
		}
		metrics.RedisOperationsTotal.WithLabelValues(op, status).Inc()
		return err
	}
	metrics.RedisOperationsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

func isOpenBreaker(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

// Ping verifies the cache is reachable, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.guarded(ctx, "ping", func() error { return c.rdb.Ping(ctx).Err() })
}

// DeleteRoom drops every cache key owned by a room (meta, seats,
// presence, game mirror) — used on leave_room by the host.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.guarded(ctx, "delete_room", func() error {
		return c.rdb.Del(ctx, metaKey(roomID), seatsKey(roomID), presenceKey(roomID), gameKey(roomID)).Err()
	})
}
