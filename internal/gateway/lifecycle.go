package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/riaz37/groupbuy-realtime/internal/router"
	"github.com/riaz37/groupbuy-realtime/pkg/events"
	"github.com/riaz37/groupbuy-realtime/pkg/state"
	"github.com/tidwall/gjson"
)

// Control message vocabulary accepted from clients. Errors are logged, never
// surfaced back as protocol error frames.
const (
	msgAuthenticate = "authenticate"
	msgJoinRoom     = "joinRoom"
	msgLeaveRoom    = "leaveRoom"
)

// Lifecycle drives each connection through
// Connecting -> Authenticated -> Active -> Disconnected and owns the presence
// broadcast side effects of those transitions. It composes the state
// manager's atomic primitives; it holds no state of its own.
type Lifecycle struct {
	logger       *slog.Logger
	stateManager state.Manager
	eventRouter  *router.EventRouter
	verifier     *TokenVerifier
}

func NewLifecycle(logger *slog.Logger, stateManager state.Manager, eventRouter *router.EventRouter, verifier *TokenVerifier) *Lifecycle {
	return &Lifecycle{
		logger:       logger.With(slog.String("component", "lifecycle")),
		stateManager: stateManager,
		eventRouter:  eventRouter,
		verifier:     verifier,
	}
}

// HandleMessage dispatches a raw client message to the matching control
// handler. It is wired as the transport's OnMessage callback.
func (l *Lifecycle) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg router.ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		l.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	switch clientMsg.Event {
	case msgAuthenticate:
		l.handleAuthenticate(connID, clientMsg.Payload)
	case msgJoinRoom:
		l.handleJoinRoom(connID, clientMsg.Payload)
	case msgLeaveRoom:
		l.handleLeaveRoom(connID, clientMsg.Payload)
	default:
		l.logger.Warn("Received unknown control message", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
	}
}

// handleAuthenticate validates the claimed identity and, on success, binds
// presence, joins the implicit rooms, activates the connection, and fires the
// online broadcast. On failure the connection stays in Connecting and may
// retry on the same connection.
func (l *Lifecycle) handleAuthenticate(connID uuid.UUID, payload []byte) {
	conn, ok := l.stateManager.GetConnection(connID)
	if !ok {
		l.logger.Warn("Authenticate from unknown connection", slog.String("connID", connID.String()))
		return
	}

	userID := gjson.GetBytes(payload, "userId").String()
	claimedRole := gjson.GetBytes(payload, "role").String()
	token := gjson.GetBytes(payload, "token").String()

	creds, err := l.verifier.Verify(userID, claimedRole, token)
	if err != nil {
		l.logger.Warn("Authentication failed",
			slog.String("connID", connID.String()),
			slog.String("userID", userID),
			slog.Any("error", err),
		)
		return
	}

	// Re-authentication: shed the previous identity's rooms and presence
	// before taking on the new one.
	prevUserID := conn.UserID
	wasActiveSameUser := conn.State == state.StateActive && prevUserID == creds.UserID
	if prevUserID != "" && prevUserID != creds.UserID {
		l.stateManager.Leave(connID, state.UserRoom(prevUserID))
		l.stateManager.Leave(connID, state.RoomAdmin)
		if l.stateManager.Unbind(connID, prevUserID) {
			l.eventRouter.EmitToAllExcept(connID, events.UserOffline, presencePayload(prevUserID))
		}
	}

	_, displaced, err := l.stateManager.BindUser(connID, creds.UserID, creds.Role)
	if err != nil {
		l.logger.Warn("Failed to bind user", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}
	// Last-connection-wins: the displaced session no longer mirrors the
	// presence table, so it leaves the user room. It stays connected and
	// keeps its other memberships until it disconnects on its own.
	if displaced != nil {
		l.stateManager.Leave(displaced.ID, state.UserRoom(creds.UserID))
	}

	l.stateManager.Join(connID, state.UserRoom(creds.UserID))
	if creds.Role.IsAdmin() {
		l.stateManager.Join(connID, state.RoomAdmin)
	} else {
		l.stateManager.Leave(connID, state.RoomAdmin)
	}

	if err := l.stateManager.Activate(connID); err != nil {
		l.logger.Warn("Failed to activate connection", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	if !wasActiveSameUser {
		l.eventRouter.EmitToAllExcept(connID, events.UserOnline, presencePayload(creds.UserID))
	}

	l.logger.Info("Connection authenticated",
		slog.String("connID", connID.String()),
		slog.String("userID", creds.UserID),
		slog.String("role", string(creds.Role)),
	)
}

func (l *Lifecycle) handleJoinRoom(connID uuid.UUID, payload []byte) {
	room, ok := l.namedRoomFor(connID, payload, "join")
	if !ok {
		return
	}
	if err := l.stateManager.Join(connID, room); err != nil {
		l.logger.Warn("Failed to join room", slog.String("connID", connID.String()), slog.String("room", room), slog.Any("error", err))
		return
	}
	l.logger.Debug("Connection joined room", slog.String("connID", connID.String()), slog.String("room", room))
}

func (l *Lifecycle) handleLeaveRoom(connID uuid.UUID, payload []byte) {
	room, ok := l.namedRoomFor(connID, payload, "leave")
	if !ok {
		return
	}
	l.stateManager.Leave(connID, room)
	l.logger.Debug("Connection left room", slog.String("connID", connID.String()), slog.String("room", room))
}

// namedRoomFor validates a client-initiated room operation: the connection
// must be active and the room must be a plain named room. The implicit
// user:<id> and admin rooms are system-managed and cannot be joined or left
// by request.
func (l *Lifecycle) namedRoomFor(connID uuid.UUID, payload []byte, op string) (string, bool) {
	conn, ok := l.stateManager.GetConnection(connID)
	if !ok || conn.State != state.StateActive {
		l.logger.Warn("Room operation on non-active connection", slog.String("connID", connID.String()), slog.String("op", op))
		return "", false
	}
	room := gjson.GetBytes(payload, "room").String()
	if room == "" {
		l.logger.Warn("Room operation missing room name", slog.String("connID", connID.String()), slog.String("op", op))
		return "", false
	}
	if room == state.RoomAdmin || strings.HasPrefix(room, "user:") {
		l.logger.Warn("Room operation on system-managed room denied",
			slog.String("connID", connID.String()),
			slog.String("room", room),
			slog.String("op", op),
		)
		return "", false
	}
	return room, true
}

// HandleDisconnect tears down a connection: rooms dropped, presence cleared
// (stale-guarded), and an offline broadcast fired if this connection still
// owned its user's presence entry. It is wired as the transport's OnClose
// callback. Disconnected is terminal; a reconnecting client starts over with
// a fresh connection ID.
func (l *Lifecycle) HandleDisconnect(connID uuid.UUID, cause error) {
	ownedUserID, err := l.stateManager.DeregisterConnection(connID)
	if err != nil {
		l.logger.Error("Failed to deregister connection", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}
	if ownedUserID != "" {
		l.eventRouter.EmitToAll(events.UserOffline, presencePayload(ownedUserID))
	}
	l.logger.Info("Connection disconnected",
		slog.String("connID", connID.String()),
		slog.String("userID", ownedUserID),
		slog.Any("reason", cause),
	)
}

func presencePayload(userID string) map[string]string {
	return map[string]string{"userId": userID}
}
