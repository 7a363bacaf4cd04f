// Package ws implements the WebSocket endpoint (C9): the per-connection
// state machine that glues the token verifier (C1), the connection
// manager (C5), the message protocol (C6) and handler dispatch (C7)
// together over a live gorilla/websocket connection.
package ws

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/viksharma04/ludo-stacked-backend/internal/dispatch"
	"github.com/viksharma04/ludo-stacked-backend/internal/logging"
	"github.com/viksharma04/ludo-stacked-backend/internal/presence"
	"github.com/viksharma04/ludo-stacked-backend/internal/protocol"
)

const (
	authTimeout = 30 * time.Second
	writeWait   = 10 * time.Second
)

// IPLimiter enforces the per-IP cap on new upgrade attempts, before any
// authentication has happened. Satisfied by *internal/ratelimit.RateLimiter.
type IPLimiter interface {
	CheckWebSocketIP(ctx context.Context, ip string) bool
}

// Endpoint serves /api/v1/ws: accept, authenticate-or-timeout, then a
// receive/gate/dispatch/send loop until the socket closes.
type Endpoint struct {
	Manager        *presence.Manager
	Registry       *dispatch.Registry
	AllowedOrigins []string
	IPLimiter      IPLimiter

	limitersMu sync.Mutex
	limiters   map[string]*protocol.SlidingWindowLimiter
}

// NewEndpoint constructs an Endpoint ready to serve ServeWS. ipLimiter
// may be nil, in which case the per-IP upgrade cap is skipped (tests).
func NewEndpoint(manager *presence.Manager, registry *dispatch.Registry, allowedOrigins []string, ipLimiter IPLimiter) *Endpoint {
	return &Endpoint{
		Manager:        manager,
		Registry:       registry,
		AllowedOrigins: allowedOrigins,
		IPLimiter:      ipLimiter,
		limiters:       make(map[string]*protocol.SlidingWindowLimiter),
	}
}

func (e *Endpoint) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range e.AllowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

// ServeWS upgrades the HTTP request and runs the connection's entire
// lifecycle. Authentication happens inside the message loop (the first
// `authenticate` message), not before the upgrade, so a rejected client
// gets a clean application close code instead of an HTTP 401.
func (e *Endpoint) ServeWS(c *gin.Context) {
	if e.IPLimiter != nil && !e.IPLimiter.CheckWebSocketIP(c.Request.Context(), c.ClientIP()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, map[string]string{"error": "too many connection attempts"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: e.checkOrigin,
		WriteBufferPool: &sync.Pool{
			New: func() any { return make([]byte, 4096) },
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	connRecord := e.Manager.RegisterUnauthenticated(conn)
	go e.Manager.WriteLoop(connRecord, websocket.TextMessage, writeWait)

	var timerMu sync.Mutex
	timedOut := false
	authTimer := time.AfterFunc(authTimeout, func() {
		timerMu.Lock()
		timedOut = true
		timerMu.Unlock()
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(protocol.CloseAuthTimeout, "authentication timed out"), time.Now().Add(writeWait))
		e.Manager.Disconnect(context.Background(), connRecord.ID)
	})

	defer func() {
		authTimer.Stop()
		e.Manager.Disconnect(context.Background(), connRecord.ID)
		e.dropLimiter(connRecord.ID)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		timerMu.Lock()
		if timedOut {
			timerMu.Unlock()
			return
		}
		timerMu.Unlock()

		e.handleFrame(c.Request.Context(), connRecord, messageType, data, authTimer)
	}
}

func (e *Endpoint) handleFrame(ctx context.Context, connRecord *presence.Connection, messageType int, data []byte, authTimer *time.Timer) {
	if err := protocol.CheckSize(data); err != nil {
		e.sendError(ctx, connRecord.ID, "", "MESSAGE_TOO_LARGE", "frame exceeds the maximum size")
		return
	}
	limiter := e.connectionLimiter(connRecord.ID)
	if limiter != nil && !limiter.Allow(time.Now()) {
		e.sendError(ctx, connRecord.ID, "", "RATE_LIMITED", "too many messages")
		return
	}
	if err := protocol.CheckTextEncoding(messageType == websocket.BinaryMessage, data); err != nil {
		e.sendError(ctx, connRecord.ID, "", "INVALID_MESSAGE", "binary frame is not valid UTF-8")
		return
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		e.sendError(ctx, connRecord.ID, "", "INVALID_JSON", "payload is not valid JSON")
		return
	}

	result := e.dispatchSafely(ctx, connRecord, msg)

	if msg.Type == protocol.TypeAuthenticate && result.Success {
		authTimer.Stop()
	}

	if result.Reply != nil {
		reply, err := protocol.Encode(*result.Reply)
		if err != nil {
			logging.Error(ctx, "failed to encode reply", zap.Error(err))
		} else {
			e.Manager.SendToConnection(ctx, connRecord.ID, reply)
		}
	}
	if result.Broadcast != nil && result.RoomID != "" {
		broadcast, err := protocol.Encode(*result.Broadcast)
		if err != nil {
			logging.Error(ctx, "failed to encode broadcast", zap.Error(err))
		} else {
			e.Manager.SendToRoom(result.RoomID, broadcast, connRecord.ID)
		}
	}
}

// dispatchSafely recovers from any panic inside a handler and turns it
// into error{INTERNAL_ERROR} without closing the connection — the game
// engine never panics, so a recovered panic here is always an
// infrastructure bug, not a player-triggerable condition.
func (e *Endpoint) dispatchSafely(ctx context.Context, connRecord *presence.Connection, msg protocol.ClientMessage) (result dispatch.HandlerResult) {
	conn, ok := e.Manager.Get(connRecord.ID)
	userID, roomID := "", ""
	if ok {
		userID, roomID = conn.UserID, conn.RoomID
	}
	ctx = logging.WithUser(logging.WithRoom(ctx, roomID), userID)

	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "handler panicked", zap.Any("panic", r), zap.String("message_type", string(msg.Type)))
			result = dispatch.HandlerResult{
				Reply: &protocol.ServerMessage{Type: protocol.TypeError, RequestID: msg.RequestID, Payload: protocol.ErrorPayload{Code: "INTERNAL_ERROR", Message: "internal error"}},
			}
		}
	}()

	hc := dispatch.HandlerContext{Ctx: ctx, ConnectionID: connRecord.ID, UserID: userID, Message: msg, Manager: e.Manager}
	hr, handled := e.Registry.Dispatch(hc)
	if !handled {
		logging.Info(ctx, "unhandled message type", zap.String("message_type", string(msg.Type)))
		return dispatch.HandlerResult{Success: true}
	}
	return hr
}

func (e *Endpoint) sendError(ctx context.Context, connID, requestID, code, message string) {
	msg := protocol.NewError(code, message)
	msg.RequestID = requestID
	data, err := protocol.Encode(msg)
	if err != nil {
		logging.Error(ctx, "failed to encode gate error", zap.Error(err))
		return
	}
	e.Manager.SendToConnection(ctx, connID, data)
}

// connectionLimiter returns the per-connection rate gate, lazily
// creating and caching one the first time a given connection is seen.
func (e *Endpoint) connectionLimiter(connID string) *protocol.SlidingWindowLimiter {
	e.limitersMu.Lock()
	defer e.limitersMu.Unlock()
	if e.limiters == nil {
		e.limiters = make(map[string]*protocol.SlidingWindowLimiter)
	}
	l, ok := e.limiters[connID]
	if !ok {
		l = protocol.NewSlidingWindowLimiter(10, time.Second)
		e.limiters[connID] = l
	}
	return l
}

func (e *Endpoint) dropLimiter(connID string) {
	e.limitersMu.Lock()
	defer e.limitersMu.Unlock()
	delete(e.limiters, connID)
}
