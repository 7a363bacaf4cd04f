package cache

import "errors"

// ErrUnavailable wraps any cache failure the circuit breaker catches —
// callers degrade (log and continue, or fail the specific operation)
// rather than ever surfacing a raw Redis error to the client.
var ErrUnavailable = errors.New("CACHE_UNAVAILABLE")

// ErrMiss reports a cache key that does not exist (distinct from a
// failure: the caller should fall back to the durable store, not retry).
var ErrMiss = errors.New("CACHE_MISS")
