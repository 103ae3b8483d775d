package state

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riaz37/groupbuy-realtime/pkg/transport"
)

// ConnState tracks where a connection is in its lifecycle.
type ConnState int

const (
	// StateConnecting: transport accepted, no identity yet.
	StateConnecting ConnState = iota
	// StateAuthenticated: identity bound, implicit rooms joined.
	StateAuthenticated
	// StateActive: steady state, eligible to send and receive events.
	StateActive
	// StateDisconnected: terminal. The connection ID is never reused.
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Role is the authenticated role of a connection's user.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// IsAdmin reports whether the role qualifies for the admin room.
func (r Role) IsAdmin() bool {
	switch Role(strings.ToUpper(string(r))) {
	case RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// RoomAdmin is the implicit room holding every admin connection.
const RoomAdmin = "admin"

// UserRoom returns the implicit per-user room name. It mirrors the presence
// table: at most the one active connection for that user is a member.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Connection is the registry's representation of a single transport-layer
// connection. Owned exclusively by the Manager; other components read it
// through Manager lookups.
type Connection struct {
	ID        uuid.UUID
	State     ConnState
	UserID    string // empty until authentication succeeds
	Role      Role
	IPAddress string
	Transport transport.Sender
	CreatedAt time.Time
}
