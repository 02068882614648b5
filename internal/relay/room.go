package relay

import "time"

// Room pairs exactly one sender with at most one receiver under a
// short numeric code. Rooms are owned by the Hub: every field here is
// read and written on the hub goroutine only.
type Room struct {
	Code     string
	Sender   *Client
	Receiver *Client

	CreatedAt      time.Time
	LastActivityAt time.Time

	// noReceiverTimer fires if nobody joins within the configured
	// window. Stopped on join and on teardown.
	noReceiverTimer *time.Timer

	// teardownTimer is armed when a peer reports a failed or closed
	// connection; it delays the teardown so a quick recovery can
	// cancel it.
	teardownTimer *time.Timer
}

// touch records signaling activity for the idle sweep.
func (r *Room) touch(now time.Time) {
	r.LastActivityAt = now
}

// member reports whether c belongs to the room.
func (r *Room) member(c *Client) bool {
	return c == r.Sender || c == r.Receiver
}

// other returns the participant opposite to c, or nil.
func (r *Room) other(c *Client) *Client {
	switch c {
	case r.Sender:
		return r.Receiver
	case r.Receiver:
		return r.Sender
	}
	return nil
}

// stopTimers cancels every timer the room owns. Called exactly once
// from teardown so a stale timer cannot act on a destroyed room.
func (r *Room) stopTimers() {
	if r.noReceiverTimer != nil {
		r.noReceiverTimer.Stop()
		r.noReceiverTimer = nil
	}
	if r.teardownTimer != nil {
		r.teardownTimer.Stop()
		r.teardownTimer = nil
	}
}
