// Package room implements the room lifecycle state machine (C4):
// create, join, ready-toggle, start, leave and disconnect-cleanup, each
// a two-phase write across the durable store (internal/durable) and the
// cache (internal/cache), with rollback where spec.md §4.4 names it.
package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/viksharma04/ludo-stacked-backend/internal/cache"
	"github.com/viksharma04/ludo-stacked-backend/internal/durable"
	"github.com/viksharma04/ludo-stacked-backend/internal/engine"
	"github.com/viksharma04/ludo-stacked-backend/internal/logging"
	"github.com/viksharma04/ludo-stacked-backend/internal/metrics"
)

// Service owns the Room/Seat lifecycle state machine over the durable
// store and cache adapters, plus the in-memory GameState of every room
// with an active session on this process.
type Service struct {
	durable  durableStore
	cache    cacheStore
	sessions *sessions
}

// New builds a room Service over already-constructed durable and cache
// adapters (or, in tests, fakes satisfying the same interfaces).
func New(d durableStore, c cacheStore) *Service {
	return &Service{durable: d, cache: c, sessions: newSessions()}
}

// getSnapshot assembles a Snapshot from the cache, rehydrating from the
// durable store on a cache miss (spec.md §4.4: "best-effort cache
// hydration is acceptable because all reads fall back to a
// reconstructable state on the next successful write").
func (s *Service) getSnapshot(ctx context.Context, roomID string) (Snapshot, error) {
	meta, err := s.cache.GetMeta(ctx, roomID)
	if err == nil {
		seats, err := s.cache.GetSeats(ctx, roomID, meta.MaxPlayers)
		if err == nil {
			return snapshotFrom(roomID, meta, seats), nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		return Snapshot{}, fmt.Errorf("get_snapshot: %w", durable.ErrInternal)
	}
	return s.hydrateFromDurable(ctx, roomID)
}

// hydrateFromDurable rebuilds room:{id}:meta/seats from the durable
// store's rows and writes them back to the cache before returning the
// assembled snapshot.
func (s *Service) hydrateFromDurable(ctx context.Context, roomID string) (Snapshot, error) {
	r, err := s.durable.GetRoom(ctx, roomID)
	if err != nil {
		return Snapshot{}, err
	}
	rows, err := s.durable.GetSeats(ctx, roomID)
	if err != nil {
		return Snapshot{}, err
	}

	meta := metaFromRoom(r)
	seats := make([]cache.SeatView, r.MaxPlayers)
	for _, row := range rows {
		if row.SeatIndex >= 0 && row.SeatIndex < r.MaxPlayers {
			seats[row.SeatIndex] = seatViewFromDurable(row)
		}
	}

	if err := s.cache.WriteMeta(ctx, roomID, meta); err != nil {
		logging.Warn(ctx, "cache hydration failed for meta", zap.String("room_id", roomID), zap.Error(err))
	}
	for i, sv := range seats {
		if err := s.cache.WriteSeat(ctx, roomID, i, sv); err != nil {
			logging.Warn(ctx, "cache hydration failed for seat", zap.String("room_id", roomID), zap.Int("seat_index", i), zap.Error(err))
		}
	}
	return snapshotFrom(roomID, meta, seats), nil
}

// CreateRoom implements create_room: calls the durable store, then on a
// genuinely new row initializes the cache mirror with seat 0 populated.
// A cache-init failure is logged and swallowed — the durable row is the
// source of truth and the next read rehydrates it.
func (s *Service) CreateRoom(ctx context.Context, userID, requestID, displayName string, maxPlayers int, rulesetID, rulesetConfig string) (Snapshot, error) {
	result, err := s.durable.CreateRoom(ctx, userID, requestID, "private", maxPlayers, rulesetID, rulesetConfig)
	if err != nil {
		return Snapshot{}, err
	}

	if result.Cached {
		return s.getSnapshot(ctx, result.RoomID)
	}

	now := time.Now().UnixMilli()
	meta := cache.RoomMeta{
		Status: string(durable.StatusOpen), Visibility: "private", OwnerUserID: userID,
		Code: result.Code, MaxPlayers: maxPlayers, RulesetID: rulesetID,
		RulesetConfig: rulesetConfig, CreatedAtMs: now, Version: 1,
	}
	seats := make([]cache.SeatView, maxPlayers)
	seats[0] = cache.SeatView{UserID: userID, DisplayName: displayName, IsHost: true, Connected: true, JoinedAtMs: now}

	if err := s.cache.WriteMeta(ctx, result.RoomID, meta); err != nil {
		logging.Warn(ctx, "cache init failed on create_room", zap.String("room_id", result.RoomID), zap.Error(err))
	}
	if err := s.cache.WriteSeat(ctx, result.RoomID, 0, seats[0]); err != nil {
		logging.Warn(ctx, "cache seat init failed on create_room", zap.String("room_id", result.RoomID), zap.Error(err))
	}
	metrics.ActiveRooms.Inc()
	metrics.RoomTransitionsTotal.WithLabelValues(string(durable.StatusOpen)).Inc()

	return snapshotFrom(result.RoomID, meta, seats), nil
}

// JoinRoom implements join_room: resolves code → room, handles the
// idempotent re-join case, and otherwise performs the two-phase seat
// assignment with rollback spec.md §4.4 requires.
func (s *Service) JoinRoom(ctx context.Context, userID, displayName, code string) (Snapshot, error) {
	r, err := s.durable.FindRoomByCode(ctx, code)
	if err != nil {
		return Snapshot{}, err
	}
	if r.Status == durable.StatusClosed {
		return Snapshot{}, fmt.Errorf("join_room: %w", durable.ErrRoomClosed)
	}

	seated, seatIndex, err := s.durable.SeatExists(ctx, r.RoomID, userID)
	if err != nil {
		return Snapshot{}, err
	}

	if seated {
		if _, err := s.cache.MutateSeatField(ctx, r.RoomID, seatIndex, map[string]any{"connected": true}); err != nil {
			return Snapshot{}, fmt.Errorf("join_room rejoin: %w", durable.ErrInternal)
		}
		if _, err := s.cache.BumpVersion(ctx, r.RoomID); err != nil {
			return Snapshot{}, fmt.Errorf("join_room rejoin version: %w", durable.ErrInternal)
		}
		return s.getSnapshot(ctx, r.RoomID)
	}

	if r.Status == durable.StatusInGame {
		return Snapshot{}, fmt.Errorf("join_room: %w", durable.ErrRoomInGame)
	}

	snapshot, err := s.getSnapshot(ctx, r.RoomID)
	if err != nil {
		return Snapshot{}, err
	}
	targetSeat := -1
	for i, seat := range snapshot.Seats {
		if seat.UserID == "" {
			targetSeat = i
			break
		}
	}
	if targetSeat == -1 {
		return Snapshot{}, fmt.Errorf("join_room: %w", durable.ErrRoomFull)
	}

	if err := s.durable.UpdateSeat(ctx, r.RoomID, targetSeat, &userID, displayName); err != nil {
		return Snapshot{}, err
	}

	now := time.Now().UnixMilli()
	seatView := cache.SeatView{UserID: userID, DisplayName: displayName, Connected: true, JoinedAtMs: now}
	if err := s.cache.WriteSeat(ctx, r.RoomID, targetSeat, seatView); err != nil {
		// Phase 2 failed: roll back the phase-1 durable assignment so the
		// seat doesn't appear taken with no corresponding cache entry.
		if rbErr := s.durable.UpdateSeat(ctx, r.RoomID, targetSeat, nil, ""); rbErr != nil {
			logging.Error(ctx, "join_room rollback failed", zap.String("room_id", r.RoomID), zap.Error(rbErr))
		}
		return Snapshot{}, fmt.Errorf("join_room cache write: %w", durable.ErrInternal)
	}

	if err := s.cache.AddPresence(ctx, r.RoomID, userID); err != nil {
		logging.Warn(ctx, "presence add failed on join_room", zap.String("room_id", r.RoomID), zap.Error(err))
	}
	if _, err := s.cache.BumpVersion(ctx, r.RoomID); err != nil {
		logging.Warn(ctx, "version bump failed on join_room", zap.String("room_id", r.RoomID), zap.Error(err))
	}

	return s.getSnapshot(ctx, r.RoomID)
}

// ToggleReady implements toggle_ready: flips the caller's ready flag
// atomically, then recomputes whether the room as a whole transitions
// between open and ready_to_start.
func (s *Service) ToggleReady(ctx context.Context, roomID, userID string) (Snapshot, error) {
	snapshot, err := s.getSnapshot(ctx, roomID)
	if err != nil {
		return Snapshot{}, err
	}
	if snapshot.Status != string(durable.StatusOpen) && snapshot.Status != string(durable.StatusReadyToStart) {
		return Snapshot{}, fmt.Errorf("toggle_ready: %w", ErrInvalidRoomState)
	}

	seatIndex := -1
	for i, seat := range snapshot.Seats {
		if seat.UserID == userID {
			seatIndex = i
			break
		}
	}
	if seatIndex == -1 {
		return Snapshot{}, fmt.Errorf("toggle_ready: %w", ErrNotSeated)
	}

	newReady := !snapshot.Seats[seatIndex].Ready
	if _, err := s.cache.MutateSeatField(ctx, roomID, seatIndex, map[string]any{"ready": newReady}); err != nil {
		return Snapshot{}, fmt.Errorf("toggle_ready mutate: %w", durable.ErrInternal)
	}

	snapshot, err = s.getSnapshot(ctx, roomID)
	if err != nil {
		return Snapshot{}, err
	}

	occupied, allReady := 0, true
	for _, seat := range snapshot.Seats {
		if seat.UserID == "" {
			continue
		}
		occupied++
		if !seat.Ready {
			allReady = false
		}
	}
	nextStatus := durable.StatusOpen
	if occupied >= 2 && allReady {
		nextStatus = durable.StatusReadyToStart
	}
	if string(nextStatus) != snapshot.Status {
		if err := s.durable.SetStatus(ctx, roomID, nextStatus); err != nil {
			return Snapshot{}, err
		}
		metrics.RoomTransitionsTotal.WithLabelValues(string(nextStatus)).Inc()
	}

	version, err := s.cache.BumpVersion(ctx, roomID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("toggle_ready version: %w", durable.ErrInternal)
	}
	if err := s.cache.SetStatus(ctx, roomID, string(nextStatus), version); err != nil {
		logging.Warn(ctx, "cache status write failed on toggle_ready", zap.String("room_id", roomID), zap.Error(err))
	}

	return s.getSnapshot(ctx, roomID)
}

// StartGame implements start_game: host-only, only from ready_to_start,
// and idempotent against duplicate client sends via the cached
// game-state mirror (§D).
func (s *Service) StartGame(ctx context.Context, roomID, userID string) (Snapshot, *engine.GameState, []engine.Event, error) {
	snapshot, err := s.getSnapshot(ctx, roomID)
	if err != nil {
		return Snapshot{}, nil, nil, err
	}
	// Idempotency check runs before the status check: a duplicate
	// start_game send arrives once the room is already in_game, which
	// would otherwise look like an invalid-state error rather than the
	// "already started" case spec.md §D calls for.
	if has, err := s.cache.HasGameState(ctx, roomID); err == nil && has {
		return Snapshot{}, nil, nil, fmt.Errorf("start_game: %w", ErrGameAlreadyStarted)
	}
	if snapshot.Status != string(durable.StatusReadyToStart) {
		return Snapshot{}, nil, nil, fmt.Errorf("start_game: %w", ErrInvalidRoomState)
	}
	if len(snapshot.Seats) == 0 || snapshot.Seats[0].UserID != userID {
		return Snapshot{}, nil, nil, fmt.Errorf("start_game: %w", ErrNotHost)
	}

	initial, err := buildInitialGameState(snapshot.Seats)
	if err != nil {
		return Snapshot{}, nil, nil, err
	}
	result := engine.ProcessAction(initial, engine.StartGameAction{}, userID)
	if !result.Success {
		return Snapshot{}, nil, nil, fmt.Errorf("start_game: %s", result.ErrorCode)
	}

	s.sessions.set(roomID, result.State)
	if err := s.cache.WriteGameState(ctx, roomID, result.State); err != nil {
		logging.Warn(ctx, "game state cache write failed on start_game", zap.String("room_id", roomID), zap.Error(err))
	}

	if err := s.durable.SetStatus(ctx, roomID, durable.StatusInGame); err != nil {
		return Snapshot{}, nil, nil, err
	}
	metrics.RoomTransitionsTotal.WithLabelValues(string(durable.StatusInGame)).Inc()
	version, err := s.cache.BumpVersion(ctx, roomID)
	if err != nil {
		version = snapshot.Version
	}
	if err := s.cache.SetStatus(ctx, roomID, string(durable.StatusInGame), version); err != nil {
		logging.Warn(ctx, "cache status write failed on start_game", zap.String("room_id", roomID), zap.Error(err))
	}

	for _, e := range result.Events {
		metrics.EngineEventsEmitted.WithLabelValues(e.EventType()).Inc()
	}
	metrics.EngineActionsTotal.WithLabelValues("start_game", "ok").Inc()

	final, err := s.getSnapshot(ctx, roomID)
	if err != nil {
		return Snapshot{}, nil, nil, err
	}
	return final, result.State, result.Events, nil
}

// ProcessGameAction applies action to roomID's live GameState via the
// engine and persists the resulting state to the cache mirror. C4 is the
// only caller of C8 that ever touches cache/durable; the engine itself
// never does.
func (s *Service) ProcessGameAction(ctx context.Context, roomID, userID string, action engine.Action) (engine.ProcessResult, error) {
	state, ok := s.sessions.get(roomID)
	if !ok {
		return engine.ProcessResult{}, fmt.Errorf("process_game_action: %w", durable.ErrRoomNotFound)
	}

	result := engine.ProcessAction(*state, action, userID)
	if !result.Success {
		metrics.EngineActionsTotal.WithLabelValues(actionLabel(action), "rejected").Inc()
		return result, nil
	}

	s.sessions.set(roomID, result.State)
	if err := s.cache.WriteGameState(ctx, roomID, result.State); err != nil {
		logging.Warn(ctx, "game state cache write failed", zap.String("room_id", roomID), zap.Error(err))
	}
	for _, e := range result.Events {
		metrics.EngineEventsEmitted.WithLabelValues(e.EventType()).Inc()
	}
	metrics.EngineActionsTotal.WithLabelValues(actionLabel(action), "ok").Inc()

	if result.State.Phase == engine.PhaseFinished {
		s.sessions.delete(roomID)
	}
	return result, nil
}

func actionLabel(a engine.Action) string {
	switch a.(type) {
	case engine.StartGameAction:
		return "start_game"
	case engine.RollAction:
		return "roll"
	case engine.MoveAction:
		return "move"
	case engine.CaptureChoiceAction:
		return "capture_choice"
	default:
		return "unknown"
	}
}

// LeaveRoom implements leave_room. The host leaving closes the room
// outright; a player leaving clears their seat, resets every seated
// player's ready flag, and reverts ready_to_start back to open.
func (s *Service) LeaveRoom(ctx context.Context, roomID, userID string) (closed bool, snapshot Snapshot, err error) {
	snapshot, err = s.getSnapshot(ctx, roomID)
	if err != nil {
		return false, Snapshot{}, err
	}
	if len(snapshot.Seats) == 0 {
		return false, Snapshot{}, fmt.Errorf("leave_room: %w", ErrNotSeated)
	}

	if snapshot.Seats[0].UserID == userID {
		if err := s.durable.SetStatus(ctx, roomID, durable.StatusClosed); err != nil {
			return false, Snapshot{}, err
		}
		if err := s.cache.DeleteRoom(ctx, roomID); err != nil {
			logging.Warn(ctx, "cache delete failed on leave_room", zap.String("room_id", roomID), zap.Error(err))
		}
		s.sessions.delete(roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomTransitionsTotal.WithLabelValues(string(durable.StatusClosed)).Inc()
		snapshot.Status = string(durable.StatusClosed)
		return true, snapshot, nil
	}

	if err := s.clearSeatAndResetReady(ctx, roomID, userID, true); err != nil {
		return false, Snapshot{}, err
	}
	snapshot, err = s.getSnapshot(ctx, roomID)
	if err != nil {
		return false, Snapshot{}, err
	}
	return false, snapshot, nil
}

// DisconnectCleanup implements disconnect_cleanup: the ready-reset and
// status-revert effects of leave_room, but the seat itself stays
// assigned — only connected flips to false.
func (s *Service) DisconnectCleanup(ctx context.Context, roomID, userID string) (Snapshot, error) {
	err := s.clearSeatAndResetReady(ctx, roomID, userID, false)
	if err != nil {
		return Snapshot{}, err
	}
	return s.getSnapshot(ctx, roomID)
}

// clearSeatAndResetReady is the shared body of leave_room (for a
// non-host player) and disconnect_cleanup: clear or disconnect the
// seat, reset every occupied seat's ready flag, revert
// ready_to_start → open, drop presence, and bump version.
func (s *Service) clearSeatAndResetReady(ctx context.Context, roomID, userID string, clearSeat bool) error {
	snapshot, err := s.getSnapshot(ctx, roomID)
	if err != nil {
		return err
	}
	seatIndex := -1
	for i, seat := range snapshot.Seats {
		if seat.UserID == userID {
			seatIndex = i
			break
		}
	}
	if seatIndex == -1 {
		return fmt.Errorf("leave_room: %w", ErrNotSeated)
	}

	if clearSeat {
		if err := s.durable.UpdateSeat(ctx, roomID, seatIndex, nil, ""); err != nil {
			return err
		}
		if err := s.cache.WriteSeat(ctx, roomID, seatIndex, cache.SeatView{}); err != nil {
			logging.Warn(ctx, "cache seat clear failed", zap.String("room_id", roomID), zap.Error(err))
		}
	} else {
		if _, err := s.cache.MutateSeatField(ctx, roomID, seatIndex, map[string]any{"connected": false}); err != nil {
			logging.Warn(ctx, "cache connected=false failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}

	for i, seat := range snapshot.Seats {
		if (clearSeat && i == seatIndex) || seat.UserID == "" || !seat.Ready {
			continue
		}
		if _, err := s.cache.MutateSeatField(ctx, roomID, i, map[string]any{"ready": false}); err != nil {
			logging.Warn(ctx, "ready reset failed", zap.String("room_id", roomID), zap.Int("seat_index", i), zap.Error(err))
		}
	}

	// ready_to_start only ever reverts because a seat stopped being
	// ready; any other status (open, in_game, closed) is untouched so a
	// mid-game disconnect doesn't make the cache mirror claim the room
	// reopened while the durable row still says in_game.
	nextStatus := durable.RoomStatus(snapshot.Status)
	if snapshot.Status == string(durable.StatusReadyToStart) {
		nextStatus = durable.StatusOpen
		if err := s.durable.SetStatus(ctx, roomID, nextStatus); err != nil {
			return err
		}
		metrics.RoomTransitionsTotal.WithLabelValues(string(nextStatus)).Inc()
	}

	if err := s.cache.RemovePresence(ctx, roomID, userID); err != nil {
		logging.Warn(ctx, "presence remove failed", zap.String("room_id", roomID), zap.Error(err))
	}
	version, err := s.cache.BumpVersion(ctx, roomID)
	if err != nil {
		return fmt.Errorf("leave_room version: %w", durable.ErrInternal)
	}
	if err := s.cache.SetStatus(ctx, roomID, string(nextStatus), version); err != nil {
		logging.Warn(ctx, "cache status write failed on leave_room", zap.String("room_id", roomID), zap.Error(err))
	}
	return nil
}
