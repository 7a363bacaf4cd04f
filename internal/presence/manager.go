package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/viksharma04/ludo-stacked-backend/internal/logging"
	"github.com/viksharma04/ludo-stacked-backend/internal/metrics"
	"github.com/viksharma04/ludo-stacked-backend/internal/protocol"
	"github.com/viksharma04/ludo-stacked-backend/internal/room"
)

// ErrAlreadyAuthenticated is returned by Authenticate on a duplicate call
// (spec.md §4.5: "Duplicate calls are a protocol error").
var ErrAlreadyAuthenticated = errors.New("ALREADY_AUTHENTICATED")

// ErrUnknownConnection is returned when a connection_id has no live entry.
var ErrUnknownConnection = errors.New("UNKNOWN_CONNECTION")

// RoomCleaner is the subset of *internal/room.Service the manager needs
// to run disconnect-cleanup and broadcast the result.
type RoomCleaner interface {
	DisconnectCleanup(ctx context.Context, roomID, userID string) (room.Snapshot, error)
}

// PresenceCounter is the subset of *internal/cache.Client the manager
// needs for the distributed per-user connection counter.
type PresenceCounter interface {
	IncrConnCount(ctx context.Context, userID string) (int64, error)
	DecrConnCount(ctx context.Context, userID string) (int64, error)
}

// Manager owns every live connection on this process: three in-memory
// indices protected by a single mutex (spec.md §4.5), a background
// reaper, and the hooks into the room service and distributed presence
// counter that a disconnect or send failure must trigger.
type Manager struct {
	mu          sync.Mutex
	connections map[string]*Connection
	userConns   map[string]map[string]struct{}
	roomConns   map[string]map[string]struct{}

	rooms    RoomCleaner
	counter  PresenceCounter
	idgen    func() string
	heartbeatInterval time.Duration
	connectionTimeout time.Duration

	reaperCancel context.CancelFunc
	reaperDone   chan struct{}
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithTimings overrides the reaper's tick interval and staleness
// threshold (defaults 30s/120s per spec.md §4.5).
func WithTimings(heartbeatInterval, connectionTimeout time.Duration) Option {
	return func(m *Manager) {
		m.heartbeatInterval = heartbeatInterval
		m.connectionTimeout = connectionTimeout
	}
}

// WithIDGenerator overrides connection_id generation, for deterministic tests.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.idgen = gen }
}

// New builds a Manager over a room-service disconnect hook and the
// cache's distributed connection counter.
func New(rooms RoomCleaner, counter PresenceCounter, opts ...Option) *Manager {
	m := &Manager{
		connections:       make(map[string]*Connection),
		userConns:         make(map[string]map[string]struct{}),
		roomConns:         make(map[string]map[string]struct{}),
		rooms:             rooms,
		counter:           counter,
		idgen:             newConnectionID,
		heartbeatInterval: 30 * time.Second,
		connectionTimeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterUnauthenticated allocates a connection_id for a freshly
// accepted socket and stores it, unauthenticated, before any identity is
// known — this is what lets the endpoint reject with a clean
// application close code instead of a TCP RST.
func (m *Manager) RegisterUnauthenticated(socket Socket) *Connection {
	now := time.Now()
	conn := &Connection{
		ID: m.idgen(), ConnectedAt: now, LastHeartbeat: now,
		socket: socket, send: make(chan []byte, 256),
	}

	m.mu.Lock()
	m.connections[conn.ID] = conn
	m.mu.Unlock()

	metrics.IncConnection()

	if data, err := protocol.Encode(protocol.ServerMessage{Type: protocol.TypeConnected, Payload: map[string]any{"connection_id": conn.ID}}); err == nil {
		m.SendToConnection(context.Background(), conn.ID, data)
	}
	return conn
}

// Authenticate atomically flips a connection to authenticated and wires it
// into the user/room indices. It sends nothing itself: the `authenticated`
// reply is built and sent by the caller. Duplicate calls are rejected.
func (m *Manager) Authenticate(connID, userID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if conn.Authenticated {
		return ErrAlreadyAuthenticated
	}

	conn.Authenticated = true
	conn.UserID = userID
	conn.RoomID = roomID

	if m.userConns[userID] == nil {
		m.userConns[userID] = make(map[string]struct{})
	}
	m.userConns[userID][connID] = struct{}{}

	if roomID != "" {
		if m.roomConns[roomID] == nil {
			m.roomConns[roomID] = make(map[string]struct{})
		}
		m.roomConns[roomID][connID] = struct{}{}
	}
	return nil
}

// SetRoom wires an already-authenticated connection into a room's index
// after the fact — the case of a connection that authenticates without a
// room_code and only later creates or joins one over create_room/join_room.
func (m *Manager) SetRoom(connID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if conn.RoomID == roomID {
		return nil
	}
	if conn.RoomID != "" {
		delete(m.roomConns[conn.RoomID], connID)
		if len(m.roomConns[conn.RoomID]) == 0 {
			delete(m.roomConns, conn.RoomID)
		}
	}
	conn.RoomID = roomID
	if m.roomConns[roomID] == nil {
		m.roomConns[roomID] = make(map[string]struct{})
	}
	m.roomConns[roomID][connID] = struct{}{}
	return nil
}

// Heartbeat refreshes a connection's last-seen timestamp.
func (m *Manager) Heartbeat(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.connections[connID]; ok {
		conn.LastHeartbeat = time.Now()
	}
}

// Get returns the connection record for connID, if it's still live.
func (m *Manager) Get(connID string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[connID]
	return conn, ok
}

// Disconnect removes a connection from every index, decrements the
// distributed presence counter, and — if the connection was seated in a
// room — runs room-service disconnect-cleanup and broadcasts the
// resulting snapshot as room_updated to the room's remaining members.
func (m *Manager) Disconnect(ctx context.Context, connID string) {
	m.mu.Lock()
	conn, ok := m.connections[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.connections, connID)
	if conn.UserID != "" {
		delete(m.userConns[conn.UserID], connID)
		if len(m.userConns[conn.UserID]) == 0 {
			delete(m.userConns, conn.UserID)
		}
	}
	roomID := conn.RoomID
	if roomID != "" {
		delete(m.roomConns[roomID], connID)
		if len(m.roomConns[roomID]) == 0 {
			delete(m.roomConns, roomID)
		}
	}
	m.mu.Unlock()

	close(conn.send)
	conn.socket.Close()
	metrics.DecConnection()

	if conn.UserID != "" && m.counter != nil {
		if _, err := m.counter.DecrConnCount(ctx, conn.UserID); err != nil {
			logging.Warn(ctx, "failed to decrement distributed connection counter", zap.String("user_id", conn.UserID), zap.Error(err))
		}
	}

	if roomID == "" || conn.UserID == "" || m.rooms == nil {
		return
	}
	snapshot, err := m.rooms.DisconnectCleanup(ctx, roomID, conn.UserID)
	if err != nil {
		logging.Warn(ctx, "disconnect cleanup failed", zap.String("room_id", roomID), zap.String("user_id", conn.UserID), zap.Error(err))
		return
	}
	msg := protocol.ServerMessage{Type: protocol.TypeRoomUpdated, Payload: snapshot}
	data, err := protocol.Encode(msg)
	if err != nil {
		logging.Error(ctx, "failed to encode room_updated on disconnect", zap.Error(err))
		return
	}
	m.SendToRoom(roomID, data, "")
}

// SendToConnection queues msg for one connection, non-blocking. A full
// send buffer or closed connection triggers a disconnect, per spec.md
// §4.5 ("a send failure triggers disconnect").
func (m *Manager) SendToConnection(ctx context.Context, connID string, data []byte) {
	m.mu.Lock()
	conn, ok := m.connections[connID]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case conn.send <- data:
	default:
		logging.Warn(ctx, "connection send buffer full, disconnecting", zap.String("connection_id", connID))
		go m.Disconnect(ctx, connID)
	}
}

// SendToUser fans a message out to every connection of one user.
func (m *Manager) SendToUser(ctx context.Context, userID string, data []byte) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.userConns[userID]))
	for id := range m.userConns[userID] {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.SendToConnection(ctx, id, data)
	}
}

// SendToRoom fans a message out to every connection in a room except
// the excluded connection_id, if any.
func (m *Manager) SendToRoom(roomID string, data []byte, exclude string) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.roomConns[roomID]))
	for id := range m.roomConns[roomID] {
		if id == exclude {
			continue
		}
		ids = append(ids, id)
	}
	m.mu.Unlock()
	ctx := context.Background()
	for _, id := range ids {
		m.SendToConnection(ctx, id, data)
	}
}

// WriteLoop owns the one goroutine allowed to call socket.WriteMessage
// for a connection, draining its send channel until it's closed.
func (m *Manager) WriteLoop(conn *Connection, messageType int, writeWait time.Duration) {
	for data := range conn.send {
		conn.socket.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.socket.WriteMessage(messageType, data); err != nil {
			return
		}
	}
}

func newConnectionID() string {
	return fmt.Sprintf("conn_%d", time.Now().UnixNano())
}

// StartReaper launches the background sweep that disconnects any
// connection whose last heartbeat is older than connectionTimeout. It is
// idempotent: a second call is a no-op if a reaper is already running.
func (m *Manager) StartReaper(ctx context.Context) {
	m.mu.Lock()
	if m.reaperCancel != nil {
		m.mu.Unlock()
		return
	}
	reaperCtx, cancel := context.WithCancel(ctx)
	m.reaperCancel = cancel
	m.reaperDone = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.reaperDone)
		ticker := time.NewTicker(m.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-reaperCtx.Done():
				return
			case <-ticker.C:
				m.sweep(reaperCtx)
			}
		}
	}()
}

// StopReaper cancels the reaper and waits, up to the given bound, for
// its goroutine to exit. Safe to call even if the reaper was never
// started, or has already been stopped.
func (m *Manager) StopReaper(wait time.Duration) {
	m.mu.Lock()
	cancel := m.reaperCancel
	done := m.reaperDone
	m.reaperCancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(wait):
	}
}

func (m *Manager) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-m.connectionTimeout)
	m.mu.Lock()
	stale := make([]string, 0)
	for id, conn := range m.connections {
		if conn.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		logging.Warn(ctx, "reaping stale connection", zap.String("connection_id", id))
		m.Disconnect(ctx, id)
	}
}
