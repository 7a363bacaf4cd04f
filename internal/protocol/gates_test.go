package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSizeRejectsOversizedFrame(t *testing.T) {
	small := make([]byte, 100)
	require.NoError(t, CheckSize(small))

	large := make([]byte, MaxFrameBytes+1)
	require.ErrorIs(t, CheckSize(large), ErrFrameTooLarge)
}

func TestCheckTextEncodingRejectsInvalidUTF8Binary(t *testing.T) {
	require.NoError(t, CheckTextEncoding(false, []byte{0xff, 0xfe}))
	require.NoError(t, CheckTextEncoding(true, []byte(`{"type":"ping"}`)))
	require.ErrorIs(t, CheckTextEncoding(true, []byte{0xff, 0xfe}), ErrNotUTF8Text)
}

func TestSlidingWindowLimiterCapsAtMaxPerWindow(t *testing.T) {
	l := NewSlidingWindowLimiter(10, time.Second)
	now := time.Unix(1000, 0)

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(now), "event %d should be allowed", i)
	}
	assert.False(t, l.Allow(now), "11th event within the same window should be rejected")

	later := now.Add(1100 * time.Millisecond)
	assert.True(t, l.Allow(later), "event after the window elapses should be allowed again")
}

func TestDecodeRoundTrips(t *testing.T) {
	msg := ServerMessage{Type: TypePing, RequestID: "r1"}
	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypePing, decoded.Type)
	assert.Equal(t, "r1", decoded.RequestID)
}
