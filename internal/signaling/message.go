// Package signaling is the client side of the relay protocol: a
// websocket wrapper with application-level heartbeats and a handler
// that fans incoming events out into typed channels.
package signaling

import "encoding/json"

// Message mirrors the server's wire envelope.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event types, client-to-server.
const (
	TypeCreateRoom  = "create-room"
	TypeJoinRoom    = "join-room"
	TypeOffer       = "offer"
	TypeAnswer      = "answer"
	TypeCandidate   = "ice-candidate"
	TypePing        = "ping"
	TypeStateChange = "connection-state-change"
)

// Event types, server-to-client.
const (
	TypeRoomCreated      = "room-created"
	TypeRoomJoined       = "room-joined"
	TypeReceiverJoined   = "receiver-joined"
	TypePong             = "pong"
	TypeRoomClosed       = "room-closed"
	TypePeerDisconnected = "peer-disconnected"
	TypeError            = "error"
)

// JoinPayload asks to join a room by code.
type JoinPayload struct {
	Code string `json:"code"`
}

// OfferPayload carries our SDP offer to the receiver.
type OfferPayload struct {
	Target    string `json:"target"`
	SDP       string `json:"sdp"`
	IsRestart bool   `json:"isRestart,omitempty"`
}

// AnswerPayload carries our SDP answer back to the sender.
type AnswerPayload struct {
	Target string `json:"target"`
	SDP    string `json:"sdp"`
}

// CandidatePayload carries one of our ICE candidates.
type CandidatePayload struct {
	Target    string          `json:"target,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

// StatePayload reports our peer-connection state to the other side.
type StatePayload struct {
	State string `json:"state"`
}

// RemoteOffer is a relayed offer as the receiver sees it.
type RemoteOffer struct {
	SDP       string `json:"sdp"`
	SenderID  string `json:"senderId"`
	IsRestart bool   `json:"isRestart,omitempty"`
}

// RemoteAnswer is a relayed answer as the sender sees it.
type RemoteAnswer struct {
	SDP string `json:"sdp"`
}

// RemoteCandidate is a relayed ICE candidate.
type RemoteCandidate struct {
	Candidate json.RawMessage `json:"candidate"`
	SenderID  string          `json:"senderId,omitempty"`
}

// RoomCreatedPayload answers create-room.
type RoomCreatedPayload struct {
	Code string `json:"code"`
}

// RoomJoinedPayload answers join-room.
type RoomJoinedPayload struct {
	Code string `json:"code"`
}

// ReceiverJoinedPayload tells the sender its peer arrived.
type ReceiverJoinedPayload struct {
	ReceiverID string `json:"receiverId"`
}

// RoomClosedPayload is the server's terminal notice.
type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// PeerDisconnectedPayload reports the other participant leaving.
type PeerDisconnectedPayload struct {
	Reason string `json:"reason"`
	UserID string `json:"userId"`
}

// ServerError is a failure reported through the error event.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Error makes ServerError usable as a Go error.
func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// NewMessage builds an envelope with a marshalled payload.
func NewMessage(msgType string, payload any) *Message {
	if payload == nil {
		return &Message{Type: msgType}
	}
	raw, _ := json.Marshal(payload)
	return &Message{Type: msgType, Payload: raw}
}
