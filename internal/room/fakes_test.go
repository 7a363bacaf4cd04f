package room

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/viksharma04/ludo-stacked-backend/internal/cache"
	"github.com/viksharma04/ludo-stacked-backend/internal/durable"
)

// fakeDurable is an in-memory stand-in for *internal/durable.Adapter,
// replicating just enough of its optimistic-lock semantics to exercise
// the room service without a live Postgres.
type fakeDurable struct {
	mu    sync.Mutex
	rooms map[string]*durable.Room
	seats map[string][]durable.Seat // keyed by room_id, indexed by seat_index
	codes map[string]string         // code -> room_id
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		rooms: make(map[string]*durable.Room),
		seats: make(map[string][]durable.Seat),
		codes: make(map[string]string),
	}
}

func (f *fakeDurable) CreateRoom(ctx context.Context, userID, requestID, visibility string, maxPlayers int, rulesetID, rulesetConfig string) (durable.CreateRoomResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	roomID := uuid.New().String()
	code := uuid.New().String()[:6]
	f.rooms[roomID] = &durable.Room{
		RoomID: roomID, Code: code, Status: durable.StatusOpen, Visibility: visibility,
		OwnerUserID: userID, MaxPlayers: maxPlayers, RulesetID: rulesetID,
		RulesetConfig: rulesetConfig, Version: 1,
	}
	seats := make([]durable.Seat, maxPlayers)
	owner := userID
	seats[0] = durable.Seat{RoomID: roomID, SeatIndex: 0, UserID: &owner, IsHost: true}
	for i := 1; i < maxPlayers; i++ {
		seats[i] = durable.Seat{RoomID: roomID, SeatIndex: i}
	}
	f.seats[roomID] = seats
	f.codes[code] = roomID

	return durable.CreateRoomResult{RoomID: roomID, Code: code, SeatIndex: 0, IsHost: true, Cached: false}, nil
}

func (f *fakeDurable) FindRoomByCode(ctx context.Context, code string) (*durable.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roomID, ok := f.codes[code]
	if !ok {
		return nil, durable.ErrRoomNotFound
	}
	r := *f.rooms[roomID]
	return &r, nil
}

func (f *fakeDurable) GetRoom(ctx context.Context, roomID string) (*durable.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return nil, durable.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeDurable) GetSeats(ctx context.Context, roomID string) ([]durable.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]durable.Seat{}, f.seats[roomID]...), nil
}

func (f *fakeDurable) SeatExists(ctx context.Context, roomID, userID string) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.seats[roomID] {
		if s.UserID != nil && *s.UserID == userID {
			return true, s.SeatIndex, nil
		}
	}
	return false, 0, nil
}

func (f *fakeDurable) UpdateSeat(ctx context.Context, roomID string, seatIndex int, newUserID *string, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seats := f.seats[roomID]
	if seatIndex < 0 || seatIndex >= len(seats) {
		return durable.ErrInternal
	}
	if newUserID == nil {
		seats[seatIndex].UserID = nil
		seats[seatIndex].DisplayName = ""
		seats[seatIndex].IsHost = false
		return nil
	}
	if seats[seatIndex].UserID != nil {
		return durable.ErrSeatTaken
	}
	seats[seatIndex].UserID = newUserID
	seats[seatIndex].DisplayName = displayName
	return nil
}

func (f *fakeDurable) SetStatus(ctx context.Context, roomID string, status durable.RoomStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return durable.ErrRoomNotFound
	}
	r.Status = status
	r.Version++
	return nil
}

// fakeCache is an in-memory stand-in for *internal/cache.Client.
type fakeCache struct {
	mu    sync.Mutex
	meta  map[string]cache.RoomMeta
	seats map[string][]cache.SeatView
	pres  map[string]map[string]bool
	games map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		meta:  make(map[string]cache.RoomMeta),
		seats: make(map[string][]cache.SeatView),
		pres:  make(map[string]map[string]bool),
		games: make(map[string]bool),
	}
}

func (f *fakeCache) GetMeta(ctx context.Context, roomID string) (cache.RoomMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meta[roomID]
	if !ok {
		return cache.RoomMeta{}, cache.ErrMiss
	}
	return m, nil
}

func (f *fakeCache) WriteMeta(ctx context.Context, roomID string, meta cache.RoomMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[roomID] = meta
	return nil
}

func (f *fakeCache) SetStatus(ctx context.Context, roomID, status string, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.meta[roomID]
	m.Status = status
	m.Version = version
	f.meta[roomID] = m
	return nil
}

func (f *fakeCache) BumpVersion(ctx context.Context, roomID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.meta[roomID]
	m.Version++
	f.meta[roomID] = m
	return m.Version, nil
}

func (f *fakeCache) GetSeats(ctx context.Context, roomID string, maxPlayers int) ([]cache.SeatView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seats, ok := f.seats[roomID]
	if !ok {
		return nil, cache.ErrMiss
	}
	out := make([]cache.SeatView, maxPlayers)
	copy(out, seats)
	return out, nil
}

func (f *fakeCache) WriteSeat(ctx context.Context, roomID string, seatIndex int, seat cache.SeatView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seats := f.seats[roomID]
	for len(seats) <= seatIndex {
		seats = append(seats, cache.SeatView{})
	}
	seats[seatIndex] = seat
	f.seats[roomID] = seats
	return nil
}

func (f *fakeCache) MutateSeatField(ctx context.Context, roomID string, seatIndex int, patch map[string]any) (cache.SeatView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seats := f.seats[roomID]
	for len(seats) <= seatIndex {
		seats = append(seats, cache.SeatView{})
	}
	sv := seats[seatIndex]
	if v, ok := patch["ready"].(bool); ok {
		sv.Ready = v
	}
	if v, ok := patch["connected"].(bool); ok {
		sv.Connected = v
	}
	seats[seatIndex] = sv
	f.seats[roomID] = seats
	return sv, nil
}

func (f *fakeCache) AddPresence(ctx context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pres[roomID] == nil {
		f.pres[roomID] = make(map[string]bool)
	}
	f.pres[roomID][userID] = true
	return nil
}

func (f *fakeCache) RemovePresence(ctx context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pres[roomID], userID)
	return nil
}

func (f *fakeCache) WriteGameState(ctx context.Context, roomID string, state any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games[roomID] = true
	return nil
}

func (f *fakeCache) HasGameState(ctx context.Context, roomID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.games[roomID], nil
}

func (f *fakeCache) DeleteRoom(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.meta, roomID)
	delete(f.seats, roomID)
	delete(f.pres, roomID)
	delete(f.games, roomID)
	return nil
}
