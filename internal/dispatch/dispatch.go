// Package dispatch implements the handler registry (C7): a process-wide
// map from MessageType to a handler function, and the HandlerContext /
// HandlerResult shapes that keep handlers from ever touching a socket
// directly.
package dispatch

import (
	"context"

	"github.com/viksharma04/ludo-stacked-backend/internal/presence"
	"github.com/viksharma04/ludo-stacked-backend/internal/protocol"
)

// HandlerContext is everything a handler needs: who sent the message,
// over which connection, and the manager it can use to look up other
// connections (handlers never write to sockets themselves).
type HandlerContext struct {
	Ctx          context.Context
	ConnectionID string
	UserID       string
	Message      protocol.ClientMessage
	Manager      *presence.Manager
}

// HandlerResult describes what the endpoint should do after a handler
// runs: send Reply to the requester and, if Broadcast is set, fan it out
// to RoomID excluding the requester's own connection.
type HandlerResult struct {
	Success   bool
	Reply     *protocol.ServerMessage
	Broadcast *protocol.ServerMessage
	RoomID    string
}

// Handler processes one inbound message and returns a description of the
// outbound effects. Handlers never block on I/O beyond what C4/C8 do.
type Handler func(hc HandlerContext) HandlerResult

// Registry is a process-wide MessageType → Handler map, built once at
// startup (not via package init, so construction order with its
// dependencies — the room service, the auth validator — stays explicit).
type Registry struct {
	handlers map[protocol.MessageType]Handler
}

// NewRegistry returns an empty registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[protocol.MessageType]Handler)}
}

// Register binds a handler to a message type, overwriting any prior
// binding for the same type.
func (r *Registry) Register(t protocol.MessageType, h Handler) {
	r.handlers[t] = h
}

// Dispatch looks up and runs the handler for hc.Message.Type. The second
// return value is false for a type with no registered handler — per
// spec.md §4.7 that case is logged and silently ignored, never treated
// as an error, since future message types are additive.
func (r *Registry) Dispatch(hc HandlerContext) (HandlerResult, bool) {
	h, ok := r.handlers[hc.Message.Type]
	if !ok {
		return HandlerResult{}, false
	}
	return h(hc), true
}

func reply(msg protocol.ServerMessage, requestID string) *protocol.ServerMessage {
	msg.RequestID = requestID
	return &msg
}

func errorReply(requestID, code, message string) HandlerResult {
	return HandlerResult{Success: false, Reply: reply(protocol.NewError(code, message), requestID)}
}
