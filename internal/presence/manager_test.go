package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viksharma04/ludo-stacked-backend/internal/room"
)

type fakeSocket struct {
	mu     sync.Mutex
	closed bool
	writes [][]byte
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return assert.AnError
	}
	s.writes = append(s.writes, data)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) SetWriteDeadline(t time.Time) error { return nil }

type fakeRoomCleaner struct {
	mu    sync.Mutex
	calls []string
	snap  room.Snapshot
	err   error
}

func (f *fakeRoomCleaner) DisconnectCleanup(ctx context.Context, roomID, userID string) (room.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, roomID+"/"+userID)
	return f.snap, f.err
}

type fakeCounter struct {
	mu    sync.Mutex
	count int64
}

func (f *fakeCounter) IncrConnCount(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return f.count, nil
}

func (f *fakeCounter) DecrConnCount(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count--
	return f.count, nil
}

func newTestManager() (*Manager, *fakeRoomCleaner, *fakeCounter) {
	cleaner := &fakeRoomCleaner{snap: room.Snapshot{RoomID: "room1", Status: "open"}}
	counter := &fakeCounter{}
	n := 0
	mgr := New(cleaner, counter, WithIDGenerator(func() string {
		n++
		return "conn" + string(rune('0'+n))
	}))
	return mgr, cleaner, counter
}

func TestRegisterUnauthenticatedCreatesConnection(t *testing.T) {
	mgr, _, _ := newTestManager()
	sock := &fakeSocket{}

	conn := mgr.RegisterUnauthenticated(sock)
	require.NotEmpty(t, conn.ID)
	assert.False(t, conn.Authenticated)

	got, ok := mgr.Get(conn.ID)
	require.True(t, ok)
	assert.Equal(t, conn, got)
}

func TestAuthenticateWiresIndicesAndRejectsDuplicate(t *testing.T) {
	mgr, _, _ := newTestManager()
	conn := mgr.RegisterUnauthenticated(&fakeSocket{})

	require.NoError(t, mgr.Authenticate(conn.ID, "user1", "room1"))
	got, _ := mgr.Get(conn.ID)
	assert.True(t, got.Authenticated)
	assert.Equal(t, "user1", got.UserID)
	assert.Equal(t, "room1", got.RoomID)

	err := mgr.Authenticate(conn.ID, "user1", "room1")
	assert.ErrorIs(t, err, ErrAlreadyAuthenticated)
}

func TestAuthenticateUnknownConnection(t *testing.T) {
	mgr, _, _ := newTestManager()
	err := mgr.Authenticate("missing", "user1", "room1")
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestDisconnectRunsRoomCleanupAndBroadcasts(t *testing.T) {
	mgr, cleaner, counter := newTestManager()

	sock1 := &fakeSocket{}
	conn1 := mgr.RegisterUnauthenticated(sock1)
	require.NoError(t, mgr.Authenticate(conn1.ID, "user1", "room1"))

	sock2 := &fakeSocket{}
	conn2 := mgr.RegisterUnauthenticated(sock2)
	require.NoError(t, mgr.Authenticate(conn2.ID, "user2", "room1"))

	mgr.Disconnect(context.Background(), conn1.ID)

	_, ok := mgr.Get(conn1.ID)
	assert.False(t, ok)

	cleaner.mu.Lock()
	assert.Equal(t, []string{"room1/user1"}, cleaner.calls)
	cleaner.mu.Unlock()

	assert.Equal(t, int64(-1), counter.count)

	// conn2 remains in the room index and should have received the broadcast,
	// queued behind its own `connected` frame.
	time.Sleep(10 * time.Millisecond)
	require.Len(t, conn2.send, 2)
	<-conn2.send
	assert.Contains(t, string(<-conn2.send), "room_updated")
}

func TestSendToConnectionDisconnectsOnFullBuffer(t *testing.T) {
	mgr, _, _ := newTestManager()
	conn := mgr.RegisterUnauthenticated(&fakeSocket{})
	require.NoError(t, mgr.Authenticate(conn.ID, "user1", "room1"))

	for len(conn.send) < cap(conn.send) {
		conn.send <- []byte("x")
	}
	mgr.SendToConnection(context.Background(), conn.ID, []byte("overflow"))

	require.Eventually(t, func() bool {
		_, ok := mgr.Get(conn.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestHeartbeatUpdatesLastSeen(t *testing.T) {
	mgr, _, _ := newTestManager()
	conn := mgr.RegisterUnauthenticated(&fakeSocket{})
	before := conn.LastHeartbeat

	time.Sleep(5 * time.Millisecond)
	mgr.Heartbeat(conn.ID)

	got, _ := mgr.Get(conn.ID)
	assert.True(t, got.LastHeartbeat.After(before))
}

func TestReaperDisconnectsStaleConnections(t *testing.T) {
	mgr, cleaner, _ := newTestManager()
	mgr.heartbeatInterval = 10 * time.Millisecond
	mgr.connectionTimeout = 20 * time.Millisecond

	conn := mgr.RegisterUnauthenticated(&fakeSocket{})
	require.NoError(t, mgr.Authenticate(conn.ID, "user1", "room1"))
	conn.LastHeartbeat = time.Now().Add(-time.Hour)

	mgr.StartReaper(context.Background())
	defer mgr.StopReaper(time.Second)

	require.Eventually(t, func() bool {
		_, ok := mgr.Get(conn.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)

	cleaner.mu.Lock()
	assert.Contains(t, cleaner.calls, "room1/user1")
	cleaner.mu.Unlock()
}

func TestStopReaperIsIdempotent(t *testing.T) {
	mgr, _, _ := newTestManager()
	mgr.StartReaper(context.Background())
	mgr.StopReaper(time.Second)
	mgr.StopReaper(time.Second)
}
