// Package cache wraps the shared Redis/Upstash cache: the hot mirror of
// room state (spec.md §4.3/§6) and cross-process presence counting. It
// never owns authoritative data — the durable store does — it only
// accelerates reads and coordinates in-flight presence across processes.
package cache

import "fmt"

func metaKey(roomID string) string     { return fmt.Sprintf("room:%s:meta", roomID) }
func seatsKey(roomID string) string    { return fmt.Sprintf("room:%s:seats", roomID) }
func presenceKey(roomID string) string { return fmt.Sprintf("room:%s:presence", roomID) }
func gameKey(roomID string) string     { return fmt.Sprintf("room:%s:game", roomID) }
func connCountKey(userID string) string { return fmt.Sprintf("ws:user:%s:conn_count", userID) }

func seatField(seatIndex int) string { return fmt.Sprintf("seat:%d", seatIndex) }

// presenceTTL is refreshed on every presence-set write (spec.md §4.3).
const presenceTTL = 300 // seconds
