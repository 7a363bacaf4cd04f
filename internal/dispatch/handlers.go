package dispatch

import (
	"encoding/json"
	"errors"

	"github.com/viksharma04/ludo-stacked-backend/internal/auth"
	"github.com/viksharma04/ludo-stacked-backend/internal/durable"
	"github.com/viksharma04/ludo-stacked-backend/internal/engine"
	"github.com/viksharma04/ludo-stacked-backend/internal/presence"
	"github.com/viksharma04/ludo-stacked-backend/internal/protocol"
	"github.com/viksharma04/ludo-stacked-backend/internal/room"
)

// TokenValidator is the subset of *internal/auth.Validator the
// authenticate handler needs, named so tests can substitute a fake
// instead of a live JWKS-backed validator — mirrors the teacher's own
// TokenValidator seam in its session hub.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// Handlers groups every C7 handler's dependencies: the room service
// (C4) and the token validator (C1).
type Handlers struct {
	Rooms     *room.Service
	Validator TokenValidator
}

// RegisterAll wires every closed-set message type spec.md §4.6 names
// into reg. Called once at process start from cmd/server, never from an
// init() — dependency construction order stays explicit.
func (h *Handlers) RegisterAll(reg *Registry) {
	reg.Register(protocol.TypeAuthenticate, h.authenticate)
	reg.Register(protocol.TypePing, h.ping)
	reg.Register(protocol.TypeCreateRoom, h.createRoom)
	reg.Register(protocol.TypeJoinRoom, h.joinRoom)
	reg.Register(protocol.TypeToggleReady, h.toggleReady)
	reg.Register(protocol.TypeLeaveRoom, h.leaveRoom)
	reg.Register(protocol.TypeStartGame, h.startGame)
	reg.Register(protocol.TypeGameAction, h.gameAction)
}

type authenticatePayload struct {
	Token    string `json:"token"`
	RoomCode string `json:"room_code"`
}

// authenticate verifies the bearer token and, if a room_code accompanies
// it, joins that room in the same round trip — the client's very first
// message doubles as both identity proof and room entry.
func (h *Handlers) authenticate(hc HandlerContext) HandlerResult {
	var payload authenticatePayload
	if err := json.Unmarshal(hc.Message.Payload, &payload); err != nil {
		return errorReply(hc.Message.RequestID, "INVALID_MESSAGE", "malformed authenticate payload")
	}
	if payload.Token == "" {
		return errorReply(hc.Message.RequestID, "MISSING_TOKEN", "token is required")
	}

	claims, err := h.Validator.ValidateToken(payload.Token)
	if err != nil {
		code := "AUTH_FAILED"
		var verr *auth.VerificationError
		if errors.As(err, &verr) && verr.Reason == auth.FailureExpired {
			code = "AUTH_EXPIRED"
		}
		return errorReply(hc.Message.RequestID, code, "token verification failed")
	}
	userID := claims.Subject

	var roomID string
	var snapshot room.Snapshot
	if payload.RoomCode != "" {
		snapshot, err = h.Rooms.JoinRoom(hc.Ctx, userID, claims.Email, payload.RoomCode)
		if err != nil {
			return errorReply(hc.Message.RequestID, roomErrorCode(err), "join_room failed during authenticate")
		}
		roomID = snapshot.RoomID
	}

	if err := hc.Manager.Authenticate(hc.ConnectionID, userID, roomID); err != nil {
		if errors.Is(err, presence.ErrAlreadyAuthenticated) {
			return errorReply(hc.Message.RequestID, "ALREADY_AUTHENTICATED", "connection is already authenticated")
		}
		return errorReply(hc.Message.RequestID, "INTERNAL_ERROR", "failed to authenticate connection")
	}

	ackPayload := map[string]any{"user_id": userID}
	if roomID != "" {
		ackPayload["snapshot"] = snapshot
	}
	return HandlerResult{
		Success: true,
		Reply:   reply(protocol.ServerMessage{Type: protocol.TypeAuthenticated, Payload: ackPayload}, hc.Message.RequestID),
	}
}

func (h *Handlers) ping(hc HandlerContext) HandlerResult {
	return HandlerResult{
		Success: true,
		Reply:   reply(protocol.ServerMessage{Type: protocol.TypePong}, hc.Message.RequestID),
	}
}

type createRoomPayload struct {
	DisplayName   string `json:"display_name"`
	MaxPlayers    int    `json:"max_players"`
	RulesetID     string `json:"ruleset_id"`
	RulesetConfig string `json:"ruleset_config"`
}

func (h *Handlers) createRoom(hc HandlerContext) HandlerResult {
	var payload createRoomPayload
	if err := json.Unmarshal(hc.Message.Payload, &payload); err != nil {
		return errorReply(hc.Message.RequestID, "INVALID_MESSAGE", "malformed create_room payload")
	}
	if payload.MaxPlayers <= 0 {
		payload.MaxPlayers = 4
	}

	snapshot, err := h.Rooms.CreateRoom(hc.Ctx, hc.UserID, hc.Message.RequestID, payload.DisplayName, payload.MaxPlayers, payload.RulesetID, payload.RulesetConfig)
	if err != nil {
		return HandlerResult{
			Reply: reply(protocol.ServerMessage{Type: protocol.TypeCreateRoomError, Payload: protocol.ErrorPayload{Code: roomErrorCode(err), Message: "create_room failed"}}, hc.Message.RequestID),
		}
	}

	if err := hc.Manager.SetRoom(hc.ConnectionID, snapshot.RoomID); err != nil {
		return errorReply(hc.Message.RequestID, "INTERNAL_ERROR", "failed to wire connection into room")
	}

	return HandlerResult{
		Success: true,
		Reply:   reply(protocol.ServerMessage{Type: protocol.TypeCreateRoomOk, Payload: snapshot}, hc.Message.RequestID),
	}
}

type joinRoomPayload struct {
	DisplayName string `json:"display_name"`
	Code        string `json:"code"`
}

func (h *Handlers) joinRoom(hc HandlerContext) HandlerResult {
	var payload joinRoomPayload
	if err := json.Unmarshal(hc.Message.Payload, &payload); err != nil {
		return errorReply(hc.Message.RequestID, "INVALID_MESSAGE", "malformed join_room payload")
	}

	snapshot, err := h.Rooms.JoinRoom(hc.Ctx, hc.UserID, payload.DisplayName, payload.Code)
	if err != nil {
		return HandlerResult{
			Reply: reply(protocol.ServerMessage{Type: protocol.TypeJoinRoomError, Payload: protocol.ErrorPayload{Code: roomErrorCode(err), Message: "join_room failed"}}, hc.Message.RequestID),
		}
	}

	if err := hc.Manager.SetRoom(hc.ConnectionID, snapshot.RoomID); err != nil {
		return errorReply(hc.Message.RequestID, "INTERNAL_ERROR", "failed to wire connection into room")
	}

	return HandlerResult{
		Success:   true,
		Reply:     reply(protocol.ServerMessage{Type: protocol.TypeJoinRoomOk, Payload: snapshot}, hc.Message.RequestID),
		Broadcast: &protocol.ServerMessage{Type: protocol.TypeRoomUpdated, Payload: snapshot},
		RoomID:    snapshot.RoomID,
	}
}

func (h *Handlers) toggleReady(hc HandlerContext) HandlerResult {
	conn, ok := hc.Manager.Get(hc.ConnectionID)
	if !ok || conn.RoomID == "" {
		return errorReply(hc.Message.RequestID, "NOT_IN_ROOM", "connection is not in a room")
	}

	snapshot, err := h.Rooms.ToggleReady(hc.Ctx, conn.RoomID, hc.UserID)
	if err != nil {
		return errorReply(hc.Message.RequestID, roomErrorCode(err), "toggle_ready failed")
	}

	msg := protocol.ServerMessage{Type: protocol.TypeRoomUpdated, Payload: snapshot}
	return HandlerResult{
		Success:   true,
		Reply:     reply(msg, hc.Message.RequestID),
		Broadcast: &msg,
		RoomID:    conn.RoomID,
	}
}

func (h *Handlers) leaveRoom(hc HandlerContext) HandlerResult {
	conn, ok := hc.Manager.Get(hc.ConnectionID)
	if !ok || conn.RoomID == "" {
		return errorReply(hc.Message.RequestID, "NOT_IN_ROOM", "connection is not in a room")
	}

	closed, snapshot, err := h.Rooms.LeaveRoom(hc.Ctx, conn.RoomID, hc.UserID)
	if err != nil {
		return errorReply(hc.Message.RequestID, roomErrorCode(err), "leave_room failed")
	}

	roomID := conn.RoomID
	hc.Manager.SetRoom(hc.ConnectionID, "")

	msgType := protocol.TypeRoomUpdated
	if closed {
		msgType = protocol.TypeRoomClosed
	}
	msg := protocol.ServerMessage{Type: msgType, Payload: snapshot}
	return HandlerResult{
		Success:   true,
		Reply:     reply(msg, hc.Message.RequestID),
		Broadcast: &msg,
		RoomID:    roomID,
	}
}

func (h *Handlers) startGame(hc HandlerContext) HandlerResult {
	conn, ok := hc.Manager.Get(hc.ConnectionID)
	if !ok || conn.RoomID == "" {
		return errorReply(hc.Message.RequestID, "NOT_IN_ROOM", "connection is not in a room")
	}

	snapshot, state, events, err := h.Rooms.StartGame(hc.Ctx, conn.RoomID, hc.UserID)
	if err != nil {
		return errorReply(hc.Message.RequestID, roomErrorCode(err), "start_game failed")
	}

	msg := protocol.ServerMessage{
		Type: protocol.TypeGameStarted,
		Payload: map[string]any{
			"snapshot": snapshot,
			"state":    state,
			"events":   encodeEvents(events),
		},
	}
	return HandlerResult{
		Success:   true,
		Reply:     reply(msg, hc.Message.RequestID),
		Broadcast: &msg,
		RoomID:    conn.RoomID,
	}
}

func (h *Handlers) gameAction(hc HandlerContext) HandlerResult {
	conn, ok := hc.Manager.Get(hc.ConnectionID)
	if !ok || conn.RoomID == "" {
		return errorReply(hc.Message.RequestID, "NOT_IN_ROOM", "connection is not in a room")
	}

	action, err := engine.BuildActionFromPayload(hc.Message.Payload)
	if err != nil {
		return errorReply(hc.Message.RequestID, "INVALID_MESSAGE", "malformed game_action payload")
	}

	result, err := h.Rooms.ProcessGameAction(hc.Ctx, conn.RoomID, hc.UserID, action)
	if err != nil {
		return errorReply(hc.Message.RequestID, "INTERNAL_ERROR", "game_action processing failed")
	}
	if !result.Success {
		return HandlerResult{
			Reply: reply(protocol.ServerMessage{Type: protocol.TypeGameError, Payload: protocol.ErrorPayload{Code: result.ErrorCode, Message: result.ErrorMessage}}, hc.Message.RequestID),
		}
	}

	msg := protocol.ServerMessage{
		Type: protocol.TypeGameEvents,
		Payload: map[string]any{
			"state":  result.State,
			"events": encodeEvents(result.Events),
		},
	}
	return HandlerResult{
		Success:   true,
		Reply:     reply(msg, hc.Message.RequestID),
		Broadcast: &msg,
		RoomID:    conn.RoomID,
	}
}

// encodeEvents injects each event's EventType() into its own JSON
// encoding, since the engine's Event structs carry only their own
// fields — the "type" tag clients need to discriminate the union is a
// wire-layer concern, not the engine's.
func encodeEvents(events []engine.Event) []map[string]any {
	tagged := make([]map[string]any, 0, len(events))
	for _, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		m["type"] = e.EventType()
		tagged = append(tagged, m)
	}
	return tagged
}

// roomErrorCode maps a room/durable error to the stable wire code
// spec.md §7 names, defaulting to INTERNAL_ERROR for anything it
// doesn't recognize.
func roomErrorCode(err error) string {
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
	case errors.Is(err, room.ErrPlayersNotReady):
		return "PLAYERS_NOT_READY"
	case errors.Is(err, room.ErrGameAlreadyStarted):
		return "GAME_ALREADY_STARTED"
	default:
		return "INTERNAL_ERROR"
	}
}
