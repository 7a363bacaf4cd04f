package protocol

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxFrameBytes is the size gate of spec.md §4.6: frames over this
// length are dropped with error{MESSAGE_TOO_LARGE} before JSON parsing
// is even attempted.
const MaxFrameBytes = 65536

// ErrFrameTooLarge is returned by CheckSize when a frame exceeds MaxFrameBytes.
var ErrFrameTooLarge = errors.New("MESSAGE_TOO_LARGE")

// ErrRateLimited is returned by SlidingWindowLimiter.Allow's caller when
// the window is exhausted.
var ErrRateLimited = errors.New("RATE_LIMITED")

// ErrNotUTF8Text is returned when a binary frame doesn't decode as UTF-8.
var ErrNotUTF8Text = errors.New("INVALID_MESSAGE")

// CheckSize enforces the size gate.
func CheckSize(frame []byte) error {
	if len(frame) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	return nil
}

// CheckTextEncoding enforces "binary frames are rejected unless they
// decode as text UTF-8" (spec.md §4.6). isBinary is the caller's
// classification of the frame's WebSocket opcode.
func CheckTextEncoding(isBinary bool, frame []byte) error {
	if isBinary && !utf8.Valid(frame) {
		return ErrNotUTF8Text
	}
	return nil
}

// Decode parses a frame into a ClientMessage envelope.
func Decode(frame []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

// SlidingWindowLimiter is the per-connection rate gate. It is
// hand-rolled rather than built on ulule/limiter (which the HTTP
// surface uses) because it needs a single owning goroutine's worth of
// state with a clean per-connection teardown: one instance lives as
// long as its connection and is simply discarded on disconnect, with no
// backing store to clean up.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	events []time.Time
}

// NewSlidingWindowLimiter builds a limiter allowing at most max events
// per window. spec.md §4.6 names 10 messages per 1.0 s.
func NewSlidingWindowLimiter(max int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{max: max, window: window}
}

// Allow reports whether another event may proceed at now, recording it
// if so. Expired events are pruned from the front of the window on
// every call, so the limiter's memory never grows unbounded.
func (l *SlidingWindowLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(l.events); i++ {
		if l.events[i].After(cutoff) {
			break
		}
	}
	l.events = l.events[i:]

	if len(l.events) >= l.max {
		return false
	}
	l.events = append(l.events, now)
	return true
}
