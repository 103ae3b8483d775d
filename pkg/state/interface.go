package state

import (
	"github.com/google/uuid"
	"github.com/riaz37/groupbuy-realtime/pkg/transport"
)

// Manager owns all presence and room state: the connection table, the
// user-to-connection presence mapping, and room membership sets. Every
// mutation is atomic with respect to every other; callers compose
// higher-level flows (authentication, disconnect) from these primitives and
// own any broadcast side effects themselves.
type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(conn transport.Sender, ipAddr string) (*Connection, error)
	// DeregisterConnection removes the connection from every room, clears its
	// presence entry (only if it still owns it), and marks it disconnected.
	// It returns the userID whose presence entry was actually removed, or ""
	// when the entry had already been overwritten by a newer connection.
	DeregisterConnection(connID uuid.UUID) (ownedUserID string, err error)
	// GetConnection returns a point-in-time snapshot of the connection
	// record, safe to read without the manager's lock.
	GetConnection(connID uuid.UUID) (*Connection, bool)
	ConnectionCount() int
	// ActiveConnections returns every connection currently in StateActive.
	ActiveConnections() []*Connection
	// AllConnections returns every live connection regardless of state.
	AllConnections() []*Connection

	// --- Presence ---
	// BindUser points the presence entry for userID at connID
	// (last-connection-wins), records the role on the connection, and moves
	// it to StateAuthenticated. It returns the connection that previously
	// held the entry, or nil. It does not touch room membership.
	BindUser(connID uuid.UUID, userID string, role Role) (bound *Connection, displaced *Connection, err error)
	// Activate moves an authenticated connection to StateActive.
	Activate(connID uuid.UUID) error
	// Unbind clears the presence entry for userID if it points at connID and
	// detaches the identity from the connection. Reports whether the entry
	// was removed.
	Unbind(connID uuid.UUID, userID string) bool
	Resolve(userID string) (*Connection, bool)
	IsOnline(userID string) bool
	OnlineUserIDs() []string
	OnlineAdminCount() int

	// --- Room Membership ---
	Join(connID uuid.UUID, room string) error
	Leave(connID uuid.UUID, room string)
	RoomMembers(room string) []*Connection
	// DropFromRooms removes the connection from every room it belongs to.
	DropFromRooms(connID uuid.UUID)
}
