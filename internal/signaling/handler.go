package signaling

import (
	"encoding/json"
	"log/slog"
)

// Handler routes incoming relay events to typed channels. One Handler
// serves one Client for the lifetime of the connection; Disconnected
// closes when the underlying socket dies.
type Handler struct {
	client *Client

	RoomCreated      chan string
	RoomJoined       chan string
	ReceiverJoined   chan string
	Offer            chan *RemoteOffer
	Answer           chan *RemoteAnswer
	Candidate        chan *RemoteCandidate
	PeerState        chan string
	PeerDisconnected chan *PeerDisconnectedPayload
	RoomClosed       chan string
	Errors           chan *ServerError
	Disconnected     chan struct{}
}

// NewHandler creates a handler for the given client.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:           client,
		RoomCreated:      make(chan string, 1),
		RoomJoined:       make(chan string, 1),
		ReceiverJoined:   make(chan string, 1),
		Offer:            make(chan *RemoteOffer, 2),
		Answer:           make(chan *RemoteAnswer, 2),
		Candidate:        make(chan *RemoteCandidate, 32),
		PeerState:        make(chan string, 4),
		PeerDisconnected: make(chan *PeerDisconnectedPayload, 1),
		RoomClosed:       make(chan string, 1),
		Errors:           make(chan *ServerError, 4),
		Disconnected:     make(chan struct{}),
	}
}

// Start consumes the client's incoming stream until it closes. Run it
// in its own goroutine.
func (h *Handler) Start() {
	defer close(h.Disconnected)

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case TypeRoomCreated:
			var p RoomCreatedPayload
			if decode(msg, &p) {
				h.RoomCreated <- p.Code
			}
		case TypeRoomJoined:
			var p RoomJoinedPayload
			if decode(msg, &p) {
				h.RoomJoined <- p.Code
			}
		case TypeReceiverJoined:
			var p ReceiverJoinedPayload
			if decode(msg, &p) {
				h.ReceiverJoined <- p.ReceiverID
			}
		case TypeOffer:
			var p RemoteOffer
			if decode(msg, &p) {
				h.Offer <- &p
			}
		case TypeAnswer:
			var p RemoteAnswer
			if decode(msg, &p) {
				h.Answer <- &p
			}
		case TypeCandidate:
			var p RemoteCandidate
			if decode(msg, &p) {
				h.Candidate <- &p
			}
		case TypeStateChange:
			var p StatePayload
			if decode(msg, &p) {
				h.PeerState <- p.State
			}
		case TypePeerDisconnected:
			var p PeerDisconnectedPayload
			if decode(msg, &p) {
				h.PeerDisconnected <- &p
			}
		case TypeRoomClosed:
			var p RoomClosedPayload
			if decode(msg, &p) {
				h.RoomClosed <- p.Reason
			}
		case TypeError:
			var p ServerError
			if decode(msg, &p) {
				h.Errors <- &p
			}
		default:
			slog.Debug("signaling: unknown event", "type", msg.Type)
		}
	}
}

func decode(msg *Message, dst any) bool {
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		slog.Warn("signaling: bad payload from server", "type", msg.Type, "err", err)
		return false
	}
	return true
}
