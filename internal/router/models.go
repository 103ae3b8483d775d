package router

import "encoding/json"

// ClientMessage is the wire format for client-initiated control messages
// (authenticate, joinRoom, leaveRoom).
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
