// Package api defines the agent's wire protocol.
//
// Every message is a JSON-encoded text frame with a mandatory "type"
// string used for dispatch:
//
//	{"type":"session_request","from":"dev-1","token":"..."}
//
// The Envelope holds the discriminator and the addressing fields shared
// by the sub-protocols; the payload of a frame is kept raw for a 2-pass
// unmarshal into the per-type structures below.
package api

import (
	"encoding/json"

	gojson "github.com/goccy/go-json"
)

type Envelope struct {
	Type      string          `json:"type"`
	FromID    string          `json:"fromId,omitempty"`
	ToID      string          `json:"toId,omitempty"`
	DeviceID  string          `json:"deviceId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// Raw is the undecoded frame, kept for the types whose fields
	// extend past the envelope.
	Raw []byte `json:"-"`
}

func Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// Unwrap decodes a raw frame or payload into a concrete message type,
// nil when the data doesn't parse.
func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := gojson.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
