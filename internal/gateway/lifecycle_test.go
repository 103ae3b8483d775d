package gateway_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/riaz37/groupbuy-realtime/internal/gateway"
	"github.com/riaz37/groupbuy-realtime/internal/router"
	"github.com/riaz37/groupbuy-realtime/pkg/events"
	"github.com/riaz37/groupbuy-realtime/pkg/state"
	"github.com/riaz37/groupbuy-realtime/pkg/state/statemanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	id   uuid.UUID
	mu   sync.Mutex
	sent [][]byte
}

func newMockSender() *mockSender { return &mockSender{id: uuid.New()} }

func (m *mockSender) ID() uuid.UUID { return m.id }

func (m *mockSender) Send(msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *mockSender) Close(err error) {}

func (m *mockSender) receivedEvents(t *testing.T) []events.Type {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var got []events.Type
	for _, msg := range m.sent {
		var env events.Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		got = append(got, env.Event)
	}
	return got
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fixture struct {
	manager   *statemanager.InMemoryManager
	router    *router.EventRouter
	lifecycle *gateway.Lifecycle
}

func newFixture(jwtSecret string) *fixture {
	logger := newTestLogger()
	manager := statemanager.NewInMemoryManager(logger)
	eventRouter := router.NewEventRouter(logger, manager)
	verifier := gateway.NewTokenVerifier(logger, jwtSecret)
	return &fixture{
		manager:   manager,
		router:    eventRouter,
		lifecycle: gateway.NewLifecycle(logger, manager, eventRouter, verifier),
	}
}

func (f *fixture) accept(t *testing.T) *mockSender {
	t.Helper()
	s := newMockSender()
	_, err := f.manager.RegisterConnection(s, "127.0.0.1")
	require.NoError(t, err)
	return s
}

func (f *fixture) send(t *testing.T, s *mockSender, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	msg, err := json.Marshal(map[string]any{"event": event, "payload": json.RawMessage(raw)})
	require.NoError(t, err)
	f.lifecycle.HandleMessage(context.Background(), s.ID(), msg)
}

func (f *fixture) authenticate(t *testing.T, s *mockSender, userID, role string) {
	t.Helper()
	f.send(t, s, "authenticate", map[string]string{"userId": userID, "role": role})
}

func memberIDs(conns []*state.Connection) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestAuthenticateRegularUser(t *testing.T) {
	f := newFixture("")
	s := f.accept(t)

	f.authenticate(t, s, "u1", "USER")

	assert.True(t, f.manager.IsOnline("u1"))
	conn, ok := f.manager.GetConnection(s.ID())
	require.True(t, ok)
	assert.Equal(t, state.StateActive, conn.State)
	assert.Equal(t, "u1", conn.UserID)

	assert.Contains(t, memberIDs(f.manager.RoomMembers(state.UserRoom("u1"))), s.ID())
	assert.NotContains(t, memberIDs(f.manager.RoomMembers(state.RoomAdmin)), s.ID())
}

func TestAuthenticateAdminJoinsAdminRoom(t *testing.T) {
	f := newFixture("")
	admin := f.accept(t)
	regular := f.accept(t)

	f.authenticate(t, admin, "a1", "ADMIN")
	f.authenticate(t, regular, "u1", "USER")

	adminMembers := memberIDs(f.manager.RoomMembers(state.RoomAdmin))
	assert.Contains(t, adminMembers, admin.ID())
	assert.NotContains(t, adminMembers, regular.ID())

	f.router.EmitToAdmins(events.AdminSystemAlert, map[string]string{"msg": "disk pressure"})
	assert.Contains(t, admin.receivedEvents(t), events.AdminSystemAlert)
	assert.NotContains(t, regular.receivedEvents(t), events.AdminSystemAlert)
}

func TestSuperAdminQualifiesForAdminRoom(t *testing.T) {
	f := newFixture("")
	s := f.accept(t)

	f.authenticate(t, s, "root", "SUPER_ADMIN")

	assert.Contains(t, memberIDs(f.manager.RoomMembers(state.RoomAdmin)), s.ID())
}

func TestLastConnectionWinsAcrossDisconnect(t *testing.T) {
	f := newFixture("")
	c1 := f.accept(t)
	c2 := f.accept(t)

	f.authenticate(t, c1, "u1", "USER")
	f.authenticate(t, c2, "u1", "USER")

	// The displaced session no longer mirrors presence in the user room.
	userRoom := memberIDs(f.manager.RoomMembers(state.UserRoom("u1")))
	assert.Equal(t, []uuid.UUID{c2.ID()}, userRoom)

	f.lifecycle.HandleDisconnect(c1.ID(), fmt.Errorf("connection reset"))

	assert.True(t, f.manager.IsOnline("u1"))
	resolved, ok := f.manager.Resolve("u1")
	require.True(t, ok)
	assert.Equal(t, c2.ID(), resolved.ID)
	// No offline broadcast fired for the stale disconnect.
	assert.NotContains(t, c2.receivedEvents(t), events.UserOffline)
}

func TestFailedAuthenticateThenRetry(t *testing.T) {
	f := newFixture("")
	s := f.accept(t)

	// Missing userId: nothing changes, the connection stays in Connecting.
	f.send(t, s, "authenticate", map[string]string{"role": "USER"})

	conn, ok := f.manager.GetConnection(s.ID())
	require.True(t, ok)
	assert.Equal(t, state.StateConnecting, conn.State)
	assert.Empty(t, f.manager.OnlineUserIDs())

	// A subsequent valid authenticate on the same connection succeeds.
	f.authenticate(t, s, "u1", "USER")
	assert.True(t, f.manager.IsOnline("u1"))
	conn, _ = f.manager.GetConnection(s.ID())
	assert.Equal(t, state.StateActive, conn.State)
}

func TestDisconnectLeavesExplicitRooms(t *testing.T) {
	f := newFixture("")
	s := f.accept(t)
	f.authenticate(t, s, "u1", "USER")

	f.send(t, s, "joinRoom", map[string]string{"room": "batch:GO-2024-001"})
	require.Contains(t, memberIDs(f.manager.RoomMembers("batch:GO-2024-001")), s.ID())

	f.lifecycle.HandleDisconnect(s.ID(), nil)

	assert.Empty(t, f.manager.RoomMembers("batch:GO-2024-001"))
	assert.False(t, f.manager.IsOnline("u1"))
}

func TestJoinRoomRequiresActiveConnection(t *testing.T) {
	f := newFixture("")
	s := f.accept(t)

	f.send(t, s, "joinRoom", map[string]string{"room": "batch:GO-2024-001"})
	assert.Empty(t, f.manager.RoomMembers("batch:GO-2024-001"))
}

func TestSystemManagedRoomsCannotBeJoinedByRequest(t *testing.T) {
	f := newFixture("")
	s := f.accept(t)
	f.authenticate(t, s, "u1", "USER")

	f.send(t, s, "joinRoom", map[string]string{"room": "admin"})
	f.send(t, s, "joinRoom", map[string]string{"room": "user:someone-else"})

	assert.NotContains(t, memberIDs(f.manager.RoomMembers(state.RoomAdmin)), s.ID())
	assert.Empty(t, f.manager.RoomMembers(state.UserRoom("someone-else")))
}

func TestLeaveRoom(t *testing.T) {
	f := newFixture("")
	s := f.accept(t)
	f.authenticate(t, s, "u1", "USER")

	f.send(t, s, "joinRoom", map[string]string{"room": "deals"})
	require.Contains(t, memberIDs(f.manager.RoomMembers("deals")), s.ID())

	f.send(t, s, "leaveRoom", map[string]string{"room": "deals"})
	assert.Empty(t, f.manager.RoomMembers("deals"))
}

func TestPresenceBroadcasts(t *testing.T) {
	f := newFixture("")
	observer := f.accept(t)
	f.authenticate(t, observer, "watcher", "USER")

	joiner := f.accept(t)
	f.authenticate(t, joiner, "u1", "USER")

	// The observer hears about the arrival; the joiner does not hear about
	// itself.
	assert.Contains(t, observer.receivedEvents(t), events.UserOnline)
	assert.NotContains(t, joiner.receivedEvents(t), events.UserOnline)

	f.lifecycle.HandleDisconnect(joiner.ID(), nil)
	assert.Contains(t, observer.receivedEvents(t), events.UserOffline)
}

func TestReauthenticateAsDifferentUser(t *testing.T) {
	f := newFixture("")
	observer := f.accept(t)
	f.authenticate(t, observer, "watcher", "USER")

	s := f.accept(t)
	f.authenticate(t, s, "a1", "ADMIN")
	require.Contains(t, memberIDs(f.manager.RoomMembers(state.RoomAdmin)), s.ID())

	f.authenticate(t, s, "u2", "USER")

	// The old identity is fully shed: presence, user room, and the admin
	// membership that came with the old role.
	assert.False(t, f.manager.IsOnline("a1"))
	assert.Empty(t, f.manager.RoomMembers(state.UserRoom("a1")))
	assert.NotContains(t, memberIDs(f.manager.RoomMembers(state.RoomAdmin)), s.ID())

	assert.True(t, f.manager.IsOnline("u2"))
	assert.Contains(t, memberIDs(f.manager.RoomMembers(state.UserRoom("u2"))), s.ID())

	got := observer.receivedEvents(t)
	assert.Contains(t, got, events.UserOffline)
	assert.Contains(t, got, events.UserOnline)
}

func TestReauthenticateSameUserIsIdempotent(t *testing.T) {
	f := newFixture("")
	observer := f.accept(t)
	f.authenticate(t, observer, "watcher", "USER")

	s := f.accept(t)
	f.authenticate(t, s, "u1", "USER")
	f.authenticate(t, s, "u1", "USER")

	assert.True(t, f.manager.IsOnline("u1"))
	assert.Len(t, f.manager.RoomMembers(state.UserRoom("u1")), 1)

	// The online broadcast fired exactly once.
	online := 0
	for _, ev := range observer.receivedEvents(t) {
		if ev == events.UserOnline {
			online++
		}
	}
	assert.Equal(t, 1, online)
}

func TestUnknownControlMessageIsIgnored(t *testing.T) {
	f := newFixture("")
	s := f.accept(t)
	f.authenticate(t, s, "u1", "USER")

	f.send(t, s, "selfDestruct", map[string]string{})
	assert.True(t, f.manager.IsOnline("u1"))
}

// --- Token verification ---

func signToken(t *testing.T, secret, subject, role string) string {
	t.Helper()
	claims := gateway.AppClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthenticateWithValidToken(t *testing.T) {
	const secret = "test-secret"
	f := newFixture(secret)
	s := f.accept(t)

	token := signToken(t, secret, "a1", "ADMIN")
	// The claimed role is ignored; the signed role wins.
	f.send(t, s, "authenticate", map[string]string{"userId": "a1", "role": "USER", "token": token})

	assert.True(t, f.manager.IsOnline("a1"))
	assert.Contains(t, memberIDs(f.manager.RoomMembers(state.RoomAdmin)), s.ID())
}

func TestAuthenticateWithMissingTokenFails(t *testing.T) {
	f := newFixture("test-secret")
	s := f.accept(t)

	f.send(t, s, "authenticate", map[string]string{"userId": "u1", "role": "USER"})

	conn, _ := f.manager.GetConnection(s.ID())
	assert.Equal(t, state.StateConnecting, conn.State)
	assert.False(t, f.manager.IsOnline("u1"))
}

func TestAuthenticateWithWrongSubjectFails(t *testing.T) {
	const secret = "test-secret"
	f := newFixture(secret)
	s := f.accept(t)

	token := signToken(t, secret, "someone-else", "USER")
	f.send(t, s, "authenticate", map[string]string{"userId": "u1", "role": "USER", "token": token})

	assert.False(t, f.manager.IsOnline("u1"))
	assert.False(t, f.manager.IsOnline("someone-else"))
}

func TestAuthenticateWithBadSignatureFails(t *testing.T) {
	f := newFixture("test-secret")
	s := f.accept(t)

	token := signToken(t, "wrong-secret", "u1", "USER")
	f.send(t, s, "authenticate", map[string]string{"userId": "u1", "role": "USER", "token": token})

	assert.False(t, f.manager.IsOnline("u1"))
}
