package relay

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"
)

const (
	codeLength      = 4
	codeSpace       = 10000 // "0000" .. "9999"
	maxCodeAttempts = 10
)

// Config holds every interval the hub schedules. Production values are
// in DefaultConfig; tests shrink them to milliseconds.
type Config struct {
	// NoReceiverTimeout tears down a room nobody ever joined.
	NoReceiverTimeout time.Duration

	// RoomMaxAge is the hard ceiling on a room's lifetime.
	RoomMaxAge time.Duration

	// RoomIdleTimeout reaps a receiverless room with no recent
	// signaling activity.
	RoomIdleTimeout time.Duration

	// RoomSweepInterval is how often the room sweep runs.
	RoomSweepInterval time.Duration

	// HeartbeatInterval is how often the connection sweep runs.
	HeartbeatInterval time.Duration

	// ClientIdleTimeout force-disconnects a connection that produced
	// no traffic (not even a ping) for this long.
	ClientIdleTimeout time.Duration

	// TeardownDelay is the grace given after a peer reports a failed
	// or closed connection before the room is torn down.
	TeardownDelay time.Duration
}

// DefaultConfig returns the production schedule.
func DefaultConfig() Config {
	return Config{
		NoReceiverTimeout: 30 * time.Minute,
		RoomMaxAge:        30 * time.Minute,
		RoomIdleTimeout:   5 * time.Minute,
		RoomSweepInterval: 5 * time.Minute,
		HeartbeatInterval: 15 * time.Second,
		ClientIdleTimeout: 30 * time.Second,
		TeardownDelay:     10 * time.Second,
	}
}

// timerEvent is posted by room timers back onto the hub goroutine. The
// room pointer is compared against the live map entry before acting,
// so a timer that outlives its room does nothing.
type timerEvent struct {
	room   *Room
	reason string
}

// Stats is a point-in-time snapshot for the health endpoint.
type Stats struct {
	Rooms       int64 `json:"rooms"`
	Connections int64 `json:"connections"`
}

// Hub owns all rooms and client bindings. A single goroutine (Run)
// processes every event, so room state never sees interleaved partial
// updates; there are no locks to take and none to forget.
type Hub struct {
	cfg Config

	// Register delivers freshly upgraded connections.
	Register chan *Client

	// Unregister delivers connections whose read pump exited.
	Unregister chan *Client

	// Inbound delivers parsed envelopes from client read pumps.
	Inbound chan *Message

	// timerCh delivers expired room timers back to the hub goroutine.
	timerCh chan timerEvent

	// done is closed when Run exits so pending timer callbacks can
	// bail out instead of blocking forever.
	done chan struct{}

	rooms      map[string]*Room
	clients    map[string]*Client
	clientRoom map[string]string // connection ID -> room code, 1:1 with membership

	roomCount atomic.Int64
	connCount atomic.Int64
}

// NewHub creates a hub with the given schedule.
func NewHub(cfg Config) *Hub {
	return &Hub{
		cfg:        cfg,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Message),
		timerCh:    make(chan timerEvent),
		done:       make(chan struct{}),
		rooms:      make(map[string]*Room),
		clients:    make(map[string]*Client),
		clientRoom: make(map[string]string),
	}
}

// Stats reports active room and connection counts. Safe to call from
// any goroutine.
func (h *Hub) Stats() Stats {
	return Stats{Rooms: h.roomCount.Load(), Connections: h.connCount.Load()}
}

// Run is the hub's event loop. It returns when ctx is cancelled, after
// tearing every room down and releasing every connection.
func (h *Hub) Run(ctx context.Context) {
	roomSweep := time.NewTicker(h.cfg.RoomSweepInterval)
	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer roomSweep.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.Register:
			h.clients[c.ID] = c
			c.lastSeen = time.Now()
			h.connCount.Add(1)
			slog.Debug("relay: client registered", "client", c.ID)

		case c := <-h.Unregister:
			h.handleDisconnect(c, "peer-disconnected")

		case msg := <-h.Inbound:
			h.dispatch(msg)

		case ev := <-h.timerCh:
			if h.rooms[ev.room.Code] == ev.room {
				h.teardownRoom(ev.room.Code, ev.reason)
			}

		case <-roomSweep.C:
			h.sweepRooms(time.Now())

		case <-heartbeat.C:
			h.sweepConnections(time.Now())
		}
	}
}

// shutdown tears down all state before Run returns.
func (h *Hub) shutdown() {
	close(h.done)
	for code := range h.rooms {
		h.teardownRoom(code, "server-shutdown")
	}
	for id, c := range h.clients {
		delete(h.clients, id)
		h.connCount.Add(-1)
		c.closeSend()
	}
}

// dispatch routes one inbound envelope. Every message, whatever its
// type, counts as liveness for the sending connection.
func (h *Hub) dispatch(msg *Message) {
	c := msg.client
	if h.clients[c.ID] != c {
		return // connection already reaped
	}
	c.lastSeen = time.Now()

	switch msg.Type {
	case TypeCreateRoom:
		h.handleCreateRoom(c)
	case TypeJoinRoom:
		h.handleJoinRoom(c, msg)
	case TypeOffer:
		h.handleOffer(c, msg)
	case TypeAnswer:
		h.handleAnswer(c, msg)
	case TypeCandidate:
		h.handleCandidate(c, msg)
	case TypeStateChange:
		h.handleStateChange(c, msg)
	case TypePing:
		c.enqueue(newMessage(TypePong, nil))
	default:
		slog.Debug("relay: unknown message type", "client", c.ID, "type", msg.Type)
	}
}

// live reports whether c is still a registered connection.
func (h *Hub) live(c *Client) bool {
	return c != nil && h.clients[c.ID] == c
}

// roomOf resolves a client's room through the reverse index.
func (h *Hub) roomOf(c *Client) *Room {
	code, ok := h.clientRoom[c.ID]
	if !ok {
		return nil
	}
	return h.rooms[code]
}

// generateCode draws 4-digit codes until one is free, giving up after
// maxCodeAttempts collisions.
func (h *Hub) generateCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		code := fmt.Sprintf("%04d", n.Int64())
		if _, taken := h.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free code after %d attempts", maxCodeAttempts)
}

// handleCreateRoom allocates a room for c. A participant owns at most
// one room: any room it already holds is torn down first.
func (h *Hub) handleCreateRoom(c *Client) {
	if code, ok := h.clientRoom[c.ID]; ok {
		h.teardownRoom(code, "superseded")
	}

	code, err := h.generateCode()
	if err != nil {
		slog.Error("relay: code generation exhausted", "client", c.ID, "err", err)
		c.enqueue(errorMessage(CodeGenerationFailed, err.Error()))
		return
	}

	now := time.Now()
	room := &Room{
		Code:           code,
		Sender:         c,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	room.noReceiverTimer = h.afterFunc(h.cfg.NoReceiverTimeout, room, "timeout-no-receiver")

	h.rooms[code] = room
	h.clientRoom[c.ID] = code
	h.roomCount.Add(1)

	slog.Info("relay: room created", "room", code, "sender", c.ID)
	c.enqueue(newMessage(TypeRoomCreated, RoomCreatedPayload{Code: code}))
}

// afterFunc schedules a teardown timer that posts back onto the hub
// goroutine. The callback gives up if the hub has already stopped.
func (h *Hub) afterFunc(d time.Duration, room *Room, reason string) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case h.timerCh <- timerEvent{room: room, reason: reason}:
		case <-h.done:
		}
	})
}

// handleJoinRoom binds c as the receiver of an existing room. Like
// room creation it supersedes any room c already belongs to, keeping
// the reverse index 1:1 with membership.
func (h *Hub) handleJoinRoom(c *Client, msg *Message) {
	p, err := parseJoin(msg)
	if err != nil {
		c.enqueue(errorMessage(CodeInvalidPayload, err.Error()))
		return
	}

	room, ok := h.rooms[p.Code]
	if !ok {
		c.enqueue(errorMessage(CodeRoomNotFound, "no room with code "+p.Code))
		return
	}
	if room.Receiver != nil {
		c.enqueue(errorMessage(CodeRoomFull, "room already has a receiver"))
		return
	}
	if !h.live(room.Sender) {
		c.enqueue(errorMessage(CodeRoomInactive, "sender is no longer connected"))
		return
	}
	if room.Sender == c {
		c.enqueue(errorMessage(CodeRoomFull, "cannot join your own room"))
		return
	}

	// A participant belongs to at most one room; joining supersedes any
	// room it previously created or joined.
	if prev, ok := h.clientRoom[c.ID]; ok {
		h.teardownRoom(prev, "superseded")
	}

	room.Receiver = c
	h.clientRoom[c.ID] = p.Code
	if room.noReceiverTimer != nil {
		room.noReceiverTimer.Stop()
		room.noReceiverTimer = nil
	}
	room.touch(time.Now())

	slog.Info("relay: receiver joined", "room", p.Code, "receiver", c.ID)
	c.enqueue(newMessage(TypeRoomJoined, RoomJoinedPayload{Code: p.Code}))
	room.Sender.enqueue(newMessage(TypeReceiverJoined, ReceiverJoinedPayload{ReceiverID: c.ID}))
}

// handleOffer relays an SDP offer. Only the room's sender may offer.
func (h *Hub) handleOffer(c *Client, msg *Message) {
	p, err := parseOffer(msg)
	if err != nil {
		c.enqueue(errorMessage(CodeInvalidPayload, err.Error()))
		return
	}

	room := h.roomOf(c)
	if room == nil || room.Sender != c {
		c.enqueue(errorMessage(CodeUnauthorized, "only the room's sender may send an offer"))
		return
	}

	target := h.clients[p.Target]
	if !h.live(target) || !room.member(target) {
		c.enqueue(errorMessage(CodeTargetGone, "offer target is not connected"))
		return
	}

	room.touch(time.Now())
	target.enqueue(newMessage(TypeOffer, ForwardedOfferPayload{
		SDP:       p.SDP,
		SenderID:  c.ID,
		IsRestart: p.IsRestart,
	}))
}

// handleAnswer relays an SDP answer. Only the room's receiver may
// answer.
func (h *Hub) handleAnswer(c *Client, msg *Message) {
	p, err := parseAnswer(msg)
	if err != nil {
		c.enqueue(errorMessage(CodeInvalidPayload, err.Error()))
		return
	}

	room := h.roomOf(c)
	if room == nil || room.Receiver != c {
		c.enqueue(errorMessage(CodeUnauthorized, "only the room's receiver may send an answer"))
		return
	}

	target := h.clients[p.Target]
	if !h.live(target) || !room.member(target) {
		c.enqueue(errorMessage(CodeTargetGone, "answer target is not connected"))
		return
	}

	room.touch(time.Now())
	target.enqueue(newMessage(TypeAnswer, ForwardedAnswerPayload{SDP: p.SDP}))
}

// handleCandidate relays an ICE candidate. Either participant may send
// one; a named target gets a unicast, otherwise the rest of the room
// gets a broadcast.
func (h *Hub) handleCandidate(c *Client, msg *Message) {
	p, err := parseCandidate(msg)
	if err != nil {
		c.enqueue(errorMessage(CodeInvalidPayload, err.Error()))
		return
	}

	room := h.roomOf(c)
	if room == nil {
		c.enqueue(errorMessage(CodeRoomNotFound, "not in a room"))
		return
	}

	room.touch(time.Now())

	if p.Target != "" {
		target := h.clients[p.Target]
		if !h.live(target) || !room.member(target) {
			// Candidates race against disconnects all the time; this
			// is not worth an error event.
			slog.Debug("relay: dropping candidate for dead target", "room", room.Code, "target", p.Target)
			return
		}
		target.enqueue(newMessage(TypeCandidate, ForwardedCandidatePayload{Candidate: p.Candidate}))
		return
	}

	if other := room.other(c); h.live(other) {
		other.enqueue(newMessage(TypeCandidate, ForwardedCandidatePayload{
			Candidate: p.Candidate,
			SenderID:  c.ID,
		}))
	}
}

// handleStateChange relays a peer-connection state report and, on
// failed/closed, arms a delayed teardown the peers can outrun by
// recovering.
func (h *Hub) handleStateChange(c *Client, msg *Message) {
	p, err := parseState(msg)
	if err != nil {
		c.enqueue(errorMessage(CodeInvalidPayload, err.Error()))
		return
	}

	room := h.roomOf(c)
	if room == nil {
		c.enqueue(errorMessage(CodeRoomNotFound, "not in a room"))
		return
	}

	room.touch(time.Now())

	if other := room.other(c); h.live(other) {
		other.enqueue(newMessage(TypeStateChange, StatePayload{State: p.State}))
	}

	switch p.State {
	case "failed", "closed":
		if room.teardownTimer == nil {
			room.teardownTimer = h.afterFunc(h.cfg.TeardownDelay, room, "connection-"+p.State)
		}
	case "connected":
		if room.teardownTimer != nil {
			room.teardownTimer.Stop()
			room.teardownTimer = nil
		}
	}
}

// handleDisconnect removes a connection and, if it was in a room,
// notifies the surviving participant and tears the room down. A
// disconnected party cannot rejoin the same code. Idempotent: a second
// disconnect for the same connection is a no-op.
func (h *Hub) handleDisconnect(c *Client, reason string) {
	if h.clients[c.ID] != c {
		return
	}
	delete(h.clients, c.ID)
	h.connCount.Add(-1)
	slog.Debug("relay: client disconnected", "client", c.ID, "reason", reason)

	if code, ok := h.clientRoom[c.ID]; ok {
		if room := h.rooms[code]; room != nil && room.member(c) {
			if other := room.other(c); h.live(other) {
				other.enqueue(newMessage(TypePeerDisconnected, PeerDisconnectedPayload{
					Reason: reason,
					UserID: c.ID,
				}))
			}
			h.teardownRoom(code, reason)
		}
		delete(h.clientRoom, c.ID)
	}

	c.closeSend()
}

// teardownRoom destroys a room: timers cancelled, still-connected
// participants told why, reverse index cleared. Idempotent — a second
// call for an already-removed code does nothing.
func (h *Hub) teardownRoom(code, reason string) {
	room, ok := h.rooms[code]
	if !ok {
		return
	}

	room.stopTimers()

	for _, c := range []*Client{room.Sender, room.Receiver} {
		if c == nil {
			continue
		}
		if h.live(c) {
			c.enqueue(newMessage(TypeRoomClosed, RoomClosedPayload{Reason: reason}))
		}
		if h.clientRoom[c.ID] == code {
			delete(h.clientRoom, c.ID)
		}
	}

	delete(h.rooms, code)
	h.roomCount.Add(-1)
	slog.Info("relay: room closed", "room", code, "reason", reason)
}

// sweepRooms reaps rooms that aged out, never got a receiver, or lost
// both participants without a clean disconnect.
func (h *Hub) sweepRooms(now time.Time) {
	type victim struct {
		code   string
		reason string
	}
	var victims []victim

	for code, room := range h.rooms {
		switch {
		case now.Sub(room.CreatedAt) > h.cfg.RoomMaxAge:
			victims = append(victims, victim{code, "room-expired"})
		case room.Receiver == nil && now.Sub(room.LastActivityAt) > h.cfg.RoomIdleTimeout:
			victims = append(victims, victim{code, "timeout-no-receiver"})
		case !h.live(room.Sender) && !h.live(room.Receiver):
			victims = append(victims, victim{code, "abandoned"})
		}
	}

	for _, v := range victims {
		h.teardownRoom(v.code, v.reason)
	}
}

// sweepConnections force-disconnects clients that have been silent for
// longer than the idle timeout. Closing the socket alone would leave
// room state dangling until the read pump notices, so the disconnect
// path runs immediately.
func (h *Hub) sweepConnections(now time.Time) {
	var stale []*Client
	for _, c := range h.clients {
		if now.Sub(c.lastSeen) > h.cfg.ClientIdleTimeout {
			stale = append(stale, c)
		}
	}

	for _, c := range stale {
		slog.Info("relay: heartbeat timeout", "client", c.ID)
		h.handleDisconnect(c, "heartbeat-timeout")
		if c.conn != nil {
			c.conn.Close()
		}
	}
}
