package api

import "encoding/json"

type (
	// SDP is the payload of offer/answer frames.
	SDP struct {
		Type string `json:"type"`
		Sdp  string `json:"sdp"`
	}
	// IceCandidate is the payload of ice-candidate frames.
	IceCandidate struct {
		Candidate     string `json:"candidate"`
		SdpMid        string `json:"sdpMid"`
		SdpMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	SdpMessage struct {
		Type    string `json:"type"`
		FromID  string `json:"fromId"`
		ToID    string `json:"toId"`
		Payload SDP    `json:"payload"`
	}
	IceMessage struct {
		Type    string       `json:"type"`
		FromID  string       `json:"fromId"`
		ToID    string       `json:"toId"`
		Payload IceCandidate `json:"payload"`
	}
)

func NewSdpMessage(kind, fromID, toID, sdp string) SdpMessage {
	return SdpMessage{Type: kind, FromID: fromID, ToID: toID, Payload: SDP{Type: kind, Sdp: sdp}}
}

func NewIceMessage(fromID, toID string, c IceCandidate) IceMessage {
	return IceMessage{Type: MsgIceCandidate, FromID: fromID, ToID: toID, Payload: c}
}

// legacy senders wrap the payload once more under parsedMessage
type nestedPayload struct {
	ParsedMessage *struct {
		Payload json.RawMessage `json:"payload"`
	} `json:"parsedMessage"`
}

// FlattenRTCPayload normalizes the payload of a negotiation frame.
// Some peers emit {"payload":{"parsedMessage":{"payload":{...}}}}; the
// router flattens that exactly once so coordinators only ever see the
// inner object.
func FlattenRTCPayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	if n := Unwrap[nestedPayload](raw); n != nil && n.ParsedMessage != nil && len(n.ParsedMessage.Payload) > 0 {
		return n.ParsedMessage.Payload
	}
	return raw
}
