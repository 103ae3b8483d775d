package router

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/riaz37/groupbuy-realtime/pkg/events"
	"github.com/riaz37/groupbuy-realtime/pkg/state"
)

// EventRouter is the public emit API of the fan-out layer. Every emit is
// fire-and-forget: the event is stamped, encoded once, and handed to the
// transport send queue of each eligible recipient. Nothing is persisted,
// queued for offline users, or retried, and no error ever propagates back to
// the domain code that requested the emit.
type EventRouter struct {
	logger       *slog.Logger
	stateManager state.Manager
}

func NewEventRouter(logger *slog.Logger, stateManager state.Manager) *EventRouter {
	return &EventRouter{
		logger:       logger.With(slog.String("component", "event_router")),
		stateManager: stateManager,
	}
}

// EmitToUser delivers an event to the one connection currently associated
// with userID. An offline or unknown user is a silent no-op.
func (r *EventRouter) EmitToUser(userID string, event events.Type, payload any) {
	msg, ok := r.encode(event, payload)
	if !ok {
		return
	}
	conn, online := r.stateManager.Resolve(userID)
	if !online {
		r.logger.Debug("Emit to offline user dropped", slog.String("userID", userID), slog.String("event", event.String()))
		return
	}
	conn.Transport.Send(msg)
}

// EmitToAdmins delivers an event to every member of the admin room.
func (r *EventRouter) EmitToAdmins(event events.Type, payload any) {
	r.EmitToRoom(state.RoomAdmin, event, payload)
}

// EmitToRoom delivers an event to every member of the named room. An empty or
// nonexistent room is a silent no-op.
func (r *EventRouter) EmitToRoom(room string, event events.Type, payload any) {
	msg, ok := r.encode(event, payload)
	if !ok {
		return
	}
	for _, conn := range r.stateManager.RoomMembers(room) {
		conn.Transport.Send(msg)
	}
}

// EmitToAll delivers an event to every connection currently in the active
// state, bypassing room lookup.
func (r *EventRouter) EmitToAll(event events.Type, payload any) {
	msg, ok := r.encode(event, payload)
	if !ok {
		return
	}
	for _, conn := range r.stateManager.ActiveConnections() {
		conn.Transport.Send(msg)
	}
}

// EmitToAllExcept behaves like EmitToAll but skips one connection. Presence
// broadcasts use it so a client never hears about its own arrival or
// departure.
func (r *EventRouter) EmitToAllExcept(exclude uuid.UUID, event events.Type, payload any) {
	msg, ok := r.encode(event, payload)
	if !ok {
		return
	}
	for _, conn := range r.stateManager.ActiveConnections() {
		if conn.ID == exclude {
			continue
		}
		conn.Transport.Send(msg)
	}
}

func (r *EventRouter) encode(event events.Type, payload any) ([]byte, bool) {
	if !event.Known() {
		r.logger.Warn("Emitting event outside the documented vocabulary", slog.String("event", event.String()))
	}
	msg, err := events.Encode(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event, dropping emit",
			slog.String("event", event.String()),
			slog.Any("error", err),
		)
		return nil, false
	}
	return msg, true
}
