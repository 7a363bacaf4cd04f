// Package durable wraps the relational durable store behind the typed
// RPC surface spec.md §4.2 names (create_room, find_or_create_room,
// rooms.update_seat, rooms.set_status, rooms.find_by_code,
// room_seats.exists) so the room service never sees a raw gorm row or
// SQL error — only Room/Seat values or one of the typed errors in
// errors.go.
package durable

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/viksharma04/ludo-stacked-backend/internal/logging"
	"github.com/viksharma04/ludo-stacked-backend/internal/metrics"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const maxCodeAttempts = 8

// Adapter is the durable-store adapter (C2). It owns one *gorm.DB and a
// circuit breaker around every query, matching the degrade-gracefully
// pattern the teacher applies to its Redis bus.
type Adapter struct {
	db *gorm.DB
	cb *gobreaker.CircuitBreaker
}

// New wraps db (already opened and migrated by cmd/server) in an Adapter.
func New(db *gorm.DB) *Adapter {
	st := gobreaker.Settings{
		Name:        "durable_store",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues("durable_store").Set(circuitStateValue(to))
		},
	}
	return &Adapter{db: db, cb: gobreaker.NewCircuitBreaker(st)}
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

// guarded runs fn behind the circuit breaker, translating a tripped
// breaker into ErrInternal without retrying — callers see a plain error
// either way and map it through the usual errors.Is checks.
func (a *Adapter) guarded(ctx context.Context, op string, fn func() error) error {
	_, err := a.cb.Execute(func() (any, error) { return nil, fn() })
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		metrics.CircuitBreakerFailures.WithLabelValues("durable_store").Inc()
		logging.Warn(ctx, "durable store circuit open, failing fast", zap.String("op", op))
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
	return err
}

// Migrate runs AutoMigrate for the three tables this adapter owns.
func (a *Adapter) Migrate() error {
	return a.db.AutoMigrate(&Room{}, &Seat{}, &Profile{})
}

// CreateRoom implements spec.md §4.2's create_room RPC: idempotent by
// (owner_user_id, request_id), retrying code generation a bounded number
// of times on collision.
func (a *Adapter) CreateRoom(ctx context.Context, userID, requestID, visibility string, maxPlayers int, rulesetID, rulesetConfig string) (CreateRoomResult, error) {
	if requestID != "" {
		var existing Room
		err := a.db.WithContext(ctx).Where("owner_user_id = ? AND request_id = ?", userID, requestID).First(&existing).Error
		if err == nil {
			return CreateRoomResult{RoomID: existing.RoomID, Code: existing.Code, SeatIndex: 0, IsHost: true, Cached: true}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return CreateRoomResult{}, fmt.Errorf("create_room lookup: %w", ErrInternal)
		}
	}

	roomID := uuid.New().String()
	now := time.Now().UnixMilli()

	var lastErr error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := randomCode()
		room := Room{
			RoomID: roomID, Code: code, Status: StatusOpen, Visibility: visibility,
			OwnerUserID: userID, MaxPlayers: maxPlayers, RulesetID: rulesetID,
			RulesetConfig: rulesetConfig, CreatedAtMs: now, Version: 1, RequestID: requestID,
		}
		// Every seat row is created up front, empty ones with a nil
		// user_id, so join_room's optimistic-lock UPDATE always has a
		// row to match against instead of needing a separate insert path.
		seats := make([]Seat, maxPlayers)
		seats[0] = Seat{RoomID: roomID, SeatIndex: 0, UserID: &userID, DisplayName: "", IsHost: true, JoinedAtMs: now}
		for i := 1; i < maxPlayers; i++ {
			seats[i] = Seat{RoomID: roomID, SeatIndex: i}
		}

		err := a.guarded(ctx, "create_room", func() error {
			return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if err := tx.Create(&room).Error; err != nil {
					return err
				}
				return tx.Create(&seats).Error
			})
		})
		if err == nil {
			return CreateRoomResult{RoomID: roomID, Code: code, SeatIndex: 0, IsHost: true, Cached: false}, nil
		}
		if isUniqueViolation(err) {
			lastErr = err
			continue
		}
		if errors.Is(err, ErrInternal) {
			return CreateRoomResult{}, err
		}
		return CreateRoomResult{}, fmt.Errorf("create_room insert: %w", ErrInternal)
	}
	logging.Warn(ctx, "room code generation exhausted retries", zap.Error(lastErr))
	return CreateRoomResult{}, fmt.Errorf("create_room: %w", ErrCodeCollision)
}

// FindOrCreateRoom implements find_or_create_room: returns the caller's
// existing open room if one exists, else creates one.
func (a *Adapter) FindOrCreateRoom(ctx context.Context, userID string, maxPlayers int, rulesetID, rulesetConfig string) (CreateRoomResult, error) {
	var existing Room
	err := a.db.WithContext(ctx).Where("owner_user_id = ? AND status = ?", userID, StatusOpen).First(&existing).Error
	if err == nil {
		return CreateRoomResult{RoomID: existing.RoomID, Code: existing.Code, SeatIndex: 0, IsHost: true, Cached: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return CreateRoomResult{}, fmt.Errorf("find_or_create_room lookup: %w", ErrInternal)
	}
	return a.CreateRoom(ctx, userID, "", "private", maxPlayers, rulesetID, rulesetConfig)
}

// FindRoomByCode implements rooms.find_by_code.
func (a *Adapter) FindRoomByCode(ctx context.Context, code string) (*Room, error) {
	var room Room
	err := a.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find_by_code: %w", ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find_by_code: %w", ErrInternal)
	}
	return &room, nil
}

// GetRoom fetches a room row by its primary key.
func (a *Adapter) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	err := a.db.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get_room: %w", ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get_room: %w", ErrInternal)
	}
	return &room, nil
}

// GetSeats returns every seat row for a room, ordered by seat_index.
func (a *Adapter) GetSeats(ctx context.Context, roomID string) ([]Seat, error) {
	var seats []Seat
	if err := a.db.WithContext(ctx).Where("room_id = ?", roomID).Order("seat_index").Find(&seats).Error; err != nil {
		return nil, fmt.Errorf("get_seats: %w", ErrInternal)
	}
	return seats, nil
}

// SeatExists implements room_seats.exists: whether userID already holds a
// seat in roomID, and which one.
func (a *Adapter) SeatExists(ctx context.Context, roomID, userID string) (bool, int, error) {
	var seat Seat
	err := a.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&seat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("seat_exists: %w", ErrInternal)
	}
	return true, seat.SeatIndex, nil
}

// UpdateSeat implements rooms.update_seat's optimistic-lock semantics:
// assignment (newUserID != nil) only succeeds if the row's current
// user_id is null; clearing (newUserID == nil) has no such guard.
func (a *Adapter) UpdateSeat(ctx context.Context, roomID string, seatIndex int, newUserID *string, displayName string) error {
	now := time.Now().UnixMilli()
	var rowsAffected int64

	if newUserID == nil {
		err := a.guarded(ctx, "update_seat_clear", func() error {
			result := a.db.WithContext(ctx).Model(&Seat{}).Where("room_id = ? AND seat_index = ?", roomID, seatIndex).
				Updates(map[string]any{"user_id": nil, "display_name": "", "is_host": false})
			return result.Error
		})
		if err != nil {
			return fmt.Errorf("update_seat clear: %w", ErrInternal)
		}
		return nil
	}

	err := a.guarded(ctx, "update_seat_assign", func() error {
		result := a.db.WithContext(ctx).Model(&Seat{}).
			Where("room_id = ? AND seat_index = ? AND user_id IS NULL", roomID, seatIndex).
			Updates(map[string]any{"user_id": *newUserID, "display_name": displayName, "joined_at_ms": now})
		rowsAffected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		if errors.Is(err, ErrInternal) {
			return err
		}
		return fmt.Errorf("update_seat assign: %w", ErrInternal)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update_seat assign: %w", ErrSeatTaken)
	}
	return nil
}

// SetStatus implements rooms.set_status, bumping version alongside it.
func (a *Adapter) SetStatus(ctx context.Context, roomID string, status RoomStatus) error {
	var rowsAffected int64
	err := a.guarded(ctx, "set_status", func() error {
		result := a.db.WithContext(ctx).Model(&Room{}).Where("room_id = ?", roomID).
			Updates(map[string]any{"status": status, "version": gorm.Expr("version + 1")})
		rowsAffected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		if errors.Is(err, ErrInternal) {
			return err
		}
		return fmt.Errorf("set_status: %w", ErrInternal)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("set_status: %w", ErrRoomNotFound)
	}
	return nil
}

// GetProfile fetches a profile row, or a zero-value Profile if none yet exists.
func (a *Adapter) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := a.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{UserID: userID}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get_profile: %w", ErrInternal)
	}
	return p, nil
}

// UpsertProfile creates or updates a profile row.
func (a *Adapter) UpsertProfile(ctx context.Context, p Profile) error {
	p.UpdatedAt = time.Now()
	err := a.db.WithContext(ctx).Save(&p).Error
	if err != nil {
		return fmt.Errorf("upsert_profile: %w", ErrInternal)
	}
	return nil
}

// Ping verifies the durable store is reachable, for health checks.
func (a *Adapter) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return fmt.Errorf("durable ping: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func randomCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
