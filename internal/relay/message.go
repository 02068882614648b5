package relay

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope for all signaling traffic between a client
// and the server. Payload is decoded per Type at the boundary; nothing
// reaches room state without passing validation first.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// client is the connection that sent the message. Set by the read
	// pump, never serialized.
	client *Client
}

// Client-to-server event types.
const (
	TypeCreateRoom  = "create-room"
	TypeJoinRoom    = "join-room"
	TypeOffer       = "offer"
	TypeAnswer      = "answer"
	TypeCandidate   = "ice-candidate"
	TypePing        = "ping"
	TypeStateChange = "connection-state-change"
)

// Server-to-client event types.
const (
	TypeRoomCreated      = "room-created"
	TypeRoomJoined       = "room-joined"
	TypeReceiverJoined   = "receiver-joined"
	TypePong             = "pong"
	TypeRoomClosed       = "room-closed"
	TypePeerDisconnected = "peer-disconnected"
	TypeError            = "error"
)

// Error codes reported through the "error" event. Failures are scoped
// to the offending connection; the server process never dies for one.
// negotiation-conflict and retry-exhausted are client-side conditions
// and live with the negotiator's sentinels.
const (
	CodeRoomNotFound     = "room-not-found"
	CodeRoomFull         = "room-full"
	CodeRoomInactive     = "room-inactive"
	CodeUnauthorized     = "unauthorized"
	CodeTargetGone       = "target-disconnected"
	CodeInvalidPayload   = "invalid-payload"
	CodeGenerationFailed = "code-generation-exhausted"
)

// JoinPayload is sent with join-room.
type JoinPayload struct {
	Code string `json:"code"`
}

// OfferPayload is sent with offer. Target is the receiver's connection
// ID; IsRestart tells the remote side to discard prior negotiation
// state before applying the SDP.
type OfferPayload struct {
	Target    string `json:"target"`
	SDP       string `json:"sdp"`
	IsRestart bool   `json:"isRestart,omitempty"`
}

// AnswerPayload is sent with answer.
type AnswerPayload struct {
	Target string `json:"target"`
	SDP    string `json:"sdp"`
}

// CandidatePayload is sent with ice-candidate. Target is optional: when
// absent the candidate is broadcast to the rest of the room. The
// candidate itself is opaque to the server.
type CandidatePayload struct {
	Target    string          `json:"target,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

// StatePayload is sent with connection-state-change.
type StatePayload struct {
	State string `json:"state"`
}

// RoomCreatedPayload answers create-room.
type RoomCreatedPayload struct {
	Code string `json:"code"`
}

// RoomJoinedPayload answers join-room on the joiner's side.
type RoomJoinedPayload struct {
	Code string `json:"code"`
}

// ReceiverJoinedPayload notifies the sender that its peer arrived.
type ReceiverJoinedPayload struct {
	ReceiverID string `json:"receiverId"`
}

// ForwardedOfferPayload is what the receiver sees after the relay.
type ForwardedOfferPayload struct {
	SDP       string `json:"sdp"`
	SenderID  string `json:"senderId"`
	IsRestart bool   `json:"isRestart,omitempty"`
}

// ForwardedAnswerPayload is what the sender sees after the relay.
type ForwardedAnswerPayload struct {
	SDP string `json:"sdp"`
}

// ForwardedCandidatePayload carries a relayed ICE candidate. SenderID
// is set on room broadcasts so the receiver can attribute it.
type ForwardedCandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
	SenderID  string          `json:"senderId,omitempty"`
}

// RoomClosedPayload is the terminal notice sent before teardown.
type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// PeerDisconnectedPayload notifies the surviving participant.
type PeerDisconnectedPayload struct {
	Reason string `json:"reason"`
	UserID string `json:"userId"`
}

// ErrorPayload reports a failure to the originating connection only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// decodePayload unmarshals a message payload into dst, treating a
// missing payload as an empty object so required-field checks fire.
func decodePayload(m *Message, dst any) error {
	raw := m.Payload
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return json.Unmarshal(raw, dst)
}

// parseJoin validates a join-room payload.
func parseJoin(m *Message) (*JoinPayload, error) {
	var p JoinPayload
	if err := decodePayload(m, &p); err != nil {
		return nil, err
	}
	if len(p.Code) != codeLength {
		return nil, fmt.Errorf("join-room: code must be a %d-digit string", codeLength)
	}
	return &p, nil
}

// parseOffer validates an offer payload.
func parseOffer(m *Message) (*OfferPayload, error) {
	var p OfferPayload
	if err := decodePayload(m, &p); err != nil {
		return nil, err
	}
	if p.Target == "" || p.SDP == "" {
		return nil, fmt.Errorf("offer: target and sdp are required")
	}
	return &p, nil
}

// parseAnswer validates an answer payload.
func parseAnswer(m *Message) (*AnswerPayload, error) {
	var p AnswerPayload
	if err := decodePayload(m, &p); err != nil {
		return nil, err
	}
	if p.Target == "" || p.SDP == "" {
		return nil, fmt.Errorf("answer: target and sdp are required")
	}
	return &p, nil
}

// parseCandidate validates an ice-candidate payload.
func parseCandidate(m *Message) (*CandidatePayload, error) {
	var p CandidatePayload
	if err := decodePayload(m, &p); err != nil {
		return nil, err
	}
	if len(p.Candidate) == 0 || string(p.Candidate) == "null" {
		return nil, fmt.Errorf("ice-candidate: candidate is required")
	}
	return &p, nil
}

// parseState validates a connection-state-change payload.
func parseState(m *Message) (*StatePayload, error) {
	var p StatePayload
	if err := decodePayload(m, &p); err != nil {
		return nil, err
	}
	if p.State == "" {
		return nil, fmt.Errorf("connection-state-change: state is required")
	}
	return &p, nil
}

// newMessage builds an envelope with a marshalled payload. Payloads are
// our own structs, so marshalling cannot realistically fail; a failure
// would indicate a programming error and is surfaced as a panic.
func newMessage(msgType string, payload any) *Message {
	if payload == nil {
		return &Message{Type: msgType}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("relay: marshal %s payload: %v", msgType, err))
	}
	return &Message{Type: msgType, Payload: raw}
}

// errorMessage builds an error event for the originating connection.
func errorMessage(code, detail string) *Message {
	return newMessage(TypeError, ErrorPayload{Code: code, Message: detail})
}
