// Package health reports whether this process's remote dependencies
// (the durable store and the shared cache) are reachable. It replaces
// the teacher's gRPC SFU health-check surface: this service has no
// second internal hop to probe, only the two remote backends named in
// spec.md §1.
package health

import (
	"context"
	"sync"
	"time"
)

// Pinger is satisfied by both internal/durable.Adapter and
// internal/cache.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates the liveness of every remote dependency this
// process holds a handle to.
type Checker struct {
	durable Pinger
	cache   Pinger
	timeout time.Duration
}

// New builds a Checker over the durable-store and cache adapters.
func New(durable, cache Pinger) *Checker {
	return &Checker{durable: durable, cache: cache, timeout: 2 * time.Second}
}

// Status is the JSON-serializable outcome of a health check.
type Status struct {
	Status  string `json:"status"`
	Durable string `json:"durable_store"`
	Cache   string `json:"cache"`
}

// Check pings both backends concurrently and reports ok only if both
// succeed within the checker's timeout.
func (c *Checker) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var wg sync.WaitGroup
	var durableErr, cacheErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		durableErr = c.durable.Ping(ctx)
	}()
	go func() {
		defer wg.Done()
		cacheErr = c.cache.Ping(ctx)
	}()
	wg.Wait()

	status := Status{Status: "healthy", Durable: "ok", Cache: "ok"}
	if durableErr != nil {
		status.Durable = "unavailable"
		status.Status = "degraded"
	}
	if cacheErr != nil {
		status.Cache = "unavailable"
		status.Status = "degraded"
	}
	return status
}
