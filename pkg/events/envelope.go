package events

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format for a server-originated event. Timestamp is
// stamped at emit time; any timestamp supplied by the caller inside the
// payload is left alone but the envelope field is authoritative.
type Envelope struct {
	Event     Type            `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Encode marshals an envelope for event with the given payload, stamping the
// current time.
func Encode(event Type, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Event:     event,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	})
}
