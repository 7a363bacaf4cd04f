// Package httpapi implements the out-of-core HTTP surface named in
// spec.md §6: health, profile CRUD, room creation/join over REST (for
// clients that provision a room before ever opening the websocket), and
// the root/metrics endpoints. None of this touches the game engine —
// that only ever runs behind /api/v1/ws (internal/ws).
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/viksharma04/ludo-stacked-backend/internal/auth"
	"github.com/viksharma04/ludo-stacked-backend/internal/durable"
	"github.com/viksharma04/ludo-stacked-backend/internal/health"
	"github.com/viksharma04/ludo-stacked-backend/internal/room"
)

// ProfileStore is the subset of *internal/durable.Adapter the profile
// handlers need, narrowed so tests can substitute a fake.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (durable.Profile, error)
	UpsertProfile(ctx context.Context, p durable.Profile) error
}

// HealthChecker is the subset of *internal/health.Checker this package needs.
type HealthChecker interface {
	Check(ctx context.Context) health.Status
}

// API groups the dependencies every handler in this package draws on.
type API struct {
	Profiles ProfileStore
	Rooms    *room.Service
	Health   HealthChecker
}

// RegisterRoutes wires every route spec.md §6 names onto r. authRequired
// is the middleware (internal/middleware.RequireAuth) applied to every
// endpoint that reads the verified caller identity; roomsLimiter is the
// additional per-endpoint rate gate (spec.md §6 RATE_LIMIT_API_ROOMS)
// applied only to the room-creation/join routes.
func (a *API) RegisterRoutes(r gin.IRouter, authRequired, roomsLimiter gin.HandlerFunc) {
	r.GET("/", a.index)
	r.GET("/health", a.health)

	v1 := r.Group("/api/v1")
	v1.GET("/auth/me", authRequired, a.authMe)
	v1.GET("/profile", authRequired, a.getProfile)
	v1.PATCH("/profile", authRequired, a.patchProfile)
	v1.POST("/rooms", authRequired, roomsLimiter, a.createRoom)
	v1.POST("/rooms/join", authRequired, roomsLimiter, a.joinRoom)
}

func (a *API) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ludo-stacked-backend"})
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, a.Health.Check(c.Request.Context()))
}

func claimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get("claims")
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func (a *API) authMe(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": claims.Subject, "email": claims.Email})
}

func (a *API) getProfile(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	profile, err := a.Profiles.GetProfile(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

type patchProfileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

func (a *API) patchProfile(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req patchProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_BODY"})
		return
	}

	profile := durable.Profile{UserID: claims.Subject, DisplayName: req.DisplayName, AvatarURL: req.AvatarURL}
	if err := a.Profiles.UpsertProfile(c.Request.Context(), profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

type createRoomRequest struct {
	DisplayName   string `json:"display_name"`
	MaxPlayers    int    `json:"max_players"`
	RulesetID     string `json:"ruleset_id"`
	RulesetConfig string `json:"ruleset_config"`
	RequestID     string `json:"request_id"`
}

// createRoom lets a client provision a room before ever opening the
// websocket; the returned snapshot's room_id/code is what it then sends
// in the websocket `authenticate` message's room_code field, or the
// first `join_room` over the socket.
func (a *API) createRoom(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_BODY"})
		return
	}
	if req.MaxPlayers <= 0 {
		req.MaxPlayers = 4
	}

	snapshot, err := a.Rooms.CreateRoom(c.Request.Context(), claims.Subject, req.RequestID, req.DisplayName, req.MaxPlayers, req.RulesetID, req.RulesetConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": httpErrorCode(err)})
		return
	}
	c.JSON(http.StatusCreated, snapshot)
}

type joinRoomRequest struct {
	DisplayName string `json:"display_name"`
	Code        string `json:"code"`
}

func (a *API) joinRoom(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_BODY"})
		return
	}

	snapshot, err := a.Rooms.JoinRoom(c.Request.Context(), claims.Subject, req.DisplayName, req.Code)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, durable.ErrRoomNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, durable.ErrRoomFull) || errors.Is(err, durable.ErrRoomClosed) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": httpErrorCode(err)})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// httpErrorCode maps a room/durable error to the stable wire code
// spec.md §7 names — the HTTP mirror of dispatch's roomErrorCode.
func httpErrorCode(err error) string {
	switch {
	case errors.Is(err, durable.ErrRoomNotFound):
		return "ROOM_NOT_FOUND"
	case errors.Is(err, durable.ErrRoomClosed):
		return "ROOM_CLOSED"
	case errors.Is(err, durable.ErrRoomInGame):
		return "ROOM_IN_GAME"
	case errors.Is(err, durable.ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, room.ErrNotHost):
		return "NOT_HOST"
	case errors.Is(err, room.ErrNotSeated):
		return "NOT_SEATED"
	case errors.Is(err, room.ErrInvalidRoomState):
		return "INVALID_ROOM_STATE"
	default:
		return "INTERNAL_ERROR"
	}
}
