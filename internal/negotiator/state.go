// Package negotiator drives the peer-connection handshake for one
// client: offer/answer sequencing, ICE candidate queueing, and
// failure-triggered retries with exponential backoff. It owns exactly
// one underlying peer connection at a time; a superseded connection is
// fully retired (handlers detached via a generation counter, handle
// closed) before a new one is created.
package negotiator

import (
	"errors"
	"time"
)

// State is the single authoritative phase of a negotiation attempt.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingPeer  State = "awaiting-peer"
	StateCreatingOffer State = "creating-offer"
	StateOfferSent     State = "offer-sent"
	StateOfferReceived State = "offer-received"
	StateAnswering     State = "answering"
	StateConnected     State = "connected"
	StateRetrying      State = "retrying"
	StateFailed        State = "failed"
)

// Role fixes which side of the handshake this negotiator plays.
type Role int

const (
	// RoleInitiator creates the room and the offer.
	RoleInitiator Role = iota

	// RoleResponder joins the room and answers.
	RoleResponder
)

var (
	// ErrNegotiationConflict is returned when an offer or answer
	// arrives in a state that cannot accept it.
	ErrNegotiationConflict = errors.New("negotiation-conflict")

	// ErrRetryExhausted marks the terminal failure after the retry
	// budget is spent. The session is dead; the user gets offered a
	// fresh room instead.
	ErrRetryExhausted = errors.New("retry-exhausted")

	// ErrClosed is returned by operations on a closed negotiator.
	ErrClosed = errors.New("negotiator closed")
)

// Retry schedule defaults.
const (
	DefaultMaxRetries      = 3
	DefaultRetryBase       = time.Second
	DefaultRetryCap        = 30 * time.Second
	DefaultDisconnectGrace = 12 * time.Second
)

// BackoffDelay returns the wait before retry number attempt (counted
// from zero): base doubling per attempt, capped.
func BackoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
