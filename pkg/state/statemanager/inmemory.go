package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riaz37/groupbuy-realtime/pkg/state"
	"github.com/riaz37/groupbuy-realtime/pkg/transport"
)

// InMemoryManager keeps all presence and room state in process memory. A
// single mutex guards the three tables so that cross-table operations
// (deregister, bind) are atomic. Everything is lost on restart; reconnecting
// clients re-authenticate.
type InMemoryManager struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]*state.Connection
	presence map[string]uuid.UUID              // userID -> owning connection, at most one
	rooms    map[string]map[uuid.UUID]struct{} // room name -> member set

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:    make(map[uuid.UUID]*state.Connection),
		presence: make(map[string]uuid.UUID),
		rooms:    make(map[string]map[uuid.UUID]struct{}),
		logger:   logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

// --- Connection Lifecycle ---

func (m *InMemoryManager) RegisterConnection(conn transport.Sender, ipAddr string) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := conn.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := &state.Connection{
		ID:        connID,
		State:     state.StateConnecting,
		IPAddress: ipAddr,
		Transport: conn,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// already deregistered
		return "", nil
	}

	m.dropFromRoomsLocked(connID)

	// Clear the presence entry only if this connection still owns it. A newer
	// session for the same user may have overwritten it already, in which
	// case the user stays online.
	var owned string
	if conn.UserID != "" {
		if current, ok := m.presence[conn.UserID]; ok && current == connID {
			delete(m.presence, conn.UserID)
			owned = conn.UserID
		}
	}

	conn.State = state.StateDisconnected
	delete(m.conns, connID)
	m.logger.Debug("Connection deregistered",
		slog.String("connID", connID.String()),
		slog.String("userID", conn.UserID),
	)
	return owned, nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, false
	}
	// Hand out a snapshot: the live record is only ever mutated under the
	// manager's lock, and callers read fields like UserID and State without
	// holding it.
	snapshot := *conn
	return &snapshot, true
}

func (m *InMemoryManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *InMemoryManager) ActiveConnections() []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		if c.State == state.StateActive {
			active = append(active, c)
		}
	}
	return active
}

func (m *InMemoryManager) AllConnections() []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

// --- Presence ---

func (m *InMemoryManager) BindUser(connID uuid.UUID, userID string, role state.Role) (*state.Connection, *state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, nil, errors.New("cannot bind user to unknown connection")
	}

	var displaced *state.Connection
	if prevID, ok := m.presence[userID]; ok && prevID != connID {
		displaced = m.conns[prevID]
	}

	m.presence[userID] = connID
	conn.UserID = userID
	conn.Role = role
	conn.State = state.StateAuthenticated

	m.logger.Debug("Bound connection to user",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
		slog.String("role", string(role)),
	)
	return conn, displaced, nil
}

func (m *InMemoryManager) Activate(connID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return errors.New("cannot activate unknown connection")
	}
	conn.State = state.StateActive
	return nil
}

func (m *InMemoryManager) Unbind(connID uuid.UUID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := false
	if current, ok := m.presence[userID]; ok && current == connID {
		delete(m.presence, userID)
		removed = true
	}
	if conn, ok := m.conns[connID]; ok && conn.UserID == userID {
		conn.UserID = ""
		conn.Role = ""
	}
	return removed
}

func (m *InMemoryManager) Resolve(userID string) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connID, ok := m.presence[userID]
	if !ok {
		return nil, false
	}
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.presence[userID]
	return ok
}

func (m *InMemoryManager) OnlineUserIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.presence))
	for userID := range m.presence {
		ids = append(ids, userID)
	}
	return ids
}

func (m *InMemoryManager) OnlineAdminCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, connID := range m.presence {
		if conn, ok := m.conns[connID]; ok && conn.Role.IsAdmin() {
			count++
		}
	}
	return count
}

// --- Room Membership ---

func (m *InMemoryManager) Join(connID uuid.UUID, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[connID]; !ok {
		return errors.New("cannot join room: connection not found")
	}

	members, exists := m.rooms[room]
	if !exists {
		members = make(map[uuid.UUID]struct{})
		m.rooms[room] = members
	}
	members[connID] = struct{}{}

	m.logger.Debug("Connection joined room", slog.String("connID", connID.String()), slog.String("room", room))
	return nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(connID, room)
}

func (m *InMemoryManager) leaveLocked(connID uuid.UUID, room string) {
	members, ok := m.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)

	// For memory hygiene, remove the room once it's empty. An empty room and
	// a nonexistent room are indistinguishable to callers.
	if len(members) == 0 {
		delete(m.rooms, room)
		m.logger.Debug("Removed empty room", slog.String("room", room))
	}
}

func (m *InMemoryManager) RoomMembers(room string) []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.rooms[room]
	if !ok {
		return nil
	}
	conns := make([]*state.Connection, 0, len(members))
	for connID := range members {
		if conn, ok := m.conns[connID]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

func (m *InMemoryManager) DropFromRooms(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropFromRoomsLocked(connID)
}

func (m *InMemoryManager) dropFromRoomsLocked(connID uuid.UUID) {
	for room := range m.rooms {
		m.leaveLocked(connID, room)
	}
}
