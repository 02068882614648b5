package negotiator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// PeerConn is the slice of *webrtc.PeerConnection the negotiator
// drives. Event wiring (OnICECandidate and friends) stays with the
// caller, which is also what makes the state machine testable with a
// fake.
type PeerConn interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	RemoteDescription() *webrtc.SessionDescription
	Close() error
}

// Factory builds a fresh peer connection for each attempt.
type Factory func() (PeerConn, error)

// Config wires a Negotiator to its surroundings. OnOffer/OnAnswer
// deliver local descriptions to the signaling channel; OnConn hands
// the caller each new connection together with its generation token so
// connection-level callbacks can be attributed (and stale ones
// discarded). Callbacks are invoked without the negotiator's lock held
// and may call back into it.
type Config struct {
	Role    Role
	Factory Factory

	OnOffer  func(sdp string, isRestart bool)
	OnAnswer func(sdp string)
	OnConn   func(pc PeerConn, gen int)
	OnState  func(s State)

	MaxRetries      int
	RetryBase       time.Duration
	RetryCap        time.Duration
	DisconnectGrace time.Duration

	Logger *slog.Logger
}

// Negotiator is the per-client connection-negotiation state machine.
type Negotiator struct {
	mu  sync.Mutex
	cfg Config

	state   State
	pc      PeerConn
	gen     int
	pending []webrtc.ICECandidateInit
	attempt int
	closed  bool

	retryTimer *time.Timer
	graceTimer *time.Timer
}

// New creates a negotiator in the idle state.
func New(cfg Config) *Negotiator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = DefaultRetryCap
	}
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = DefaultDisconnectGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Negotiator{cfg: cfg, state: StateIdle}
}

// State returns the current phase.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Attempt returns how many retries have been scheduled so far in the
// current cycle.
func (n *Negotiator) Attempt() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attempt
}

// AwaitPeer moves an initiator from idle to awaiting-peer once its
// room exists.
func (n *Negotiator) AwaitPeer() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if n.cfg.Role != RoleInitiator || n.state != StateIdle {
		return fmt.Errorf("%w: await-peer in state %s", ErrNegotiationConflict, n.state)
	}
	n.setState(StateAwaitingPeer)
	return nil
}

// PeerJoined starts the initiator's offer once the receiver arrives.
func (n *Negotiator) PeerJoined() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.cfg.Role != RoleInitiator || n.state != StateAwaitingPeer {
		state := n.state
		n.mu.Unlock()
		return fmt.Errorf("%w: peer joined in state %s", ErrNegotiationConflict, state)
	}
	emits, err := n.sendOfferLocked(false)
	n.mu.Unlock()
	run(emits)
	return err
}

// sendOfferLocked creates (if needed) a connection and a plain offer,
// sets the local description, and queues the OnOffer emit. isRestart
// only controls the wire flag; an in-place ICE restart goes through
// tryRestartOfferLocked instead. Caller holds the lock.
func (n *Negotiator) sendOfferLocked(isRestart bool) ([]func(), error) {
	n.setState(StateCreatingOffer)

	emits, err := n.ensureConnLocked()
	if err != nil {
		return emits, n.failAttemptLocked(err)
	}

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return emits, n.failAttemptLocked(fmt.Errorf("create offer: %w", err))
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return emits, n.failAttemptLocked(fmt.Errorf("set local description: %w", err))
	}

	n.setState(StateOfferSent)
	sdp := offer.SDP
	if cb := n.cfg.OnOffer; cb != nil {
		emits = append(emits, func() { cb(sdp, isRestart) })
	}
	return emits, nil
}

// HandleRemoteOffer applies an offer on the responder side and emits
// the answer. A restart offer first discards all state from the prior
// attempt.
func (n *Negotiator) HandleRemoteOffer(sdp string, isRestart bool) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.cfg.Role != RoleResponder {
		n.mu.Unlock()
		return fmt.Errorf("%w: initiator received an offer", ErrNegotiationConflict)
	}

	if isRestart {
		n.resetConnLocked()
		n.stopTimersLocked()
		n.setState(StateIdle)
	}

	switch n.state {
	case StateIdle, StateRetrying:
	default:
		state := n.state
		n.mu.Unlock()
		return fmt.Errorf("%w: offer in state %s", ErrNegotiationConflict, state)
	}

	n.setState(StateOfferReceived)

	emits, err := n.ensureConnLocked()
	if err != nil {
		err = n.failAttemptLocked(err)
		n.mu.Unlock()
		run(emits)
		return err
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := n.pc.SetRemoteDescription(remote); err != nil {
		err = n.failAttemptLocked(fmt.Errorf("set remote description: %w", err))
		n.mu.Unlock()
		run(emits)
		return err
	}

	n.flushPendingLocked()
	n.setState(StateAnswering)

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		err = n.failAttemptLocked(fmt.Errorf("create answer: %w", err))
		n.mu.Unlock()
		run(emits)
		return err
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		err = n.failAttemptLocked(fmt.Errorf("set local description: %w", err))
		n.mu.Unlock()
		run(emits)
		return err
	}

	answerSDP := answer.SDP
	if cb := n.cfg.OnAnswer; cb != nil {
		emits = append(emits, func() { cb(answerSDP) })
	}
	n.mu.Unlock()
	run(emits)
	return nil
}

// HandleRemoteAnswer applies the answer on the initiator side. Only
// legal while an offer is outstanding.
func (n *Negotiator) HandleRemoteAnswer(sdp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if n.state != StateOfferSent {
		return fmt.Errorf("%w: answer in state %s", ErrNegotiationConflict, n.state)
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := n.pc.SetRemoteDescription(remote); err != nil {
		return n.failAttemptLocked(fmt.Errorf("set remote description: %w", err))
	}

	n.flushPendingLocked()
	return nil
}

// HandleRemoteCandidate applies a relayed ICE candidate, queueing it
// if the remote description has not been set yet. Queued candidates
// are flushed in arrival order.
func (n *Negotiator) HandleRemoteCandidate(cand webrtc.ICECandidateInit) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || n.state == StateFailed {
		return
	}

	if n.pc == nil || n.pc.RemoteDescription() == nil {
		n.pending = append(n.pending, cand)
		return
	}

	if err := n.pc.AddICECandidate(cand); err != nil {
		n.cfg.Logger.Warn("negotiator: add ICE candidate", "err", err)
	}
}

// flushPendingLocked drains the candidate queue in order. A failing
// candidate is logged and skipped; the rest of the queue still
// flushes. Caller holds the lock and has just set a remote
// description.
func (n *Negotiator) flushPendingLocked() {
	for _, cand := range n.pending {
		if err := n.pc.AddICECandidate(cand); err != nil {
			n.cfg.Logger.Warn("negotiator: flush ICE candidate", "err", err)
		}
	}
	n.pending = nil
}

// HandleChannelOpen marks the negotiation successful once the data
// channel reports open. The retry budget resets: future failures start
// a fresh backoff cycle.
func (n *Negotiator) HandleChannelOpen() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.attempt = 0
	n.stopTimersLocked()
	n.setState(StateConnected)
	n.mu.Unlock()
}

// HandleConnectionState feeds peer-connection state changes into the
// machine. Events carry the generation token of the connection they
// came from; anything from a superseded connection is discarded, which
// is what keeps zombie callbacks from acting on a live attempt.
func (n *Negotiator) HandleConnectionState(gen int, s webrtc.PeerConnectionState) {
	n.mu.Lock()
	if n.closed || gen != n.gen {
		n.mu.Unlock()
		return
	}

	switch s {
	case webrtc.PeerConnectionStateConnected:
		if n.graceTimer != nil {
			n.graceTimer.Stop()
			n.graceTimer = nil
		}

	case webrtc.PeerConnectionStateDisconnected:
		// Transient until proven otherwise: give the transport a grace
		// window to ride out a network flap before escalating.
		if n.graceTimer == nil {
			grace := n.cfg.DisconnectGrace
			token := n.gen
			n.graceTimer = time.AfterFunc(grace, func() { n.graceExpired(token) })
		}

	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		n.scheduleRetryLocked()
	}
	n.mu.Unlock()
}

// graceExpired runs when a disconnected state outlived its grace
// window without recovering.
func (n *Negotiator) graceExpired(gen int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || gen != n.gen {
		return
	}
	n.graceTimer = nil
	n.cfg.Logger.Info("negotiator: disconnect grace expired, escalating")
	n.scheduleRetryLocked()
}

// failAttemptLocked converts a local negotiation error into a retry
// decision and returns the original error for the caller's log line.
func (n *Negotiator) failAttemptLocked(err error) error {
	n.cfg.Logger.Warn("negotiator: attempt failed", "err", err)
	n.scheduleRetryLocked()
	return err
}

// scheduleRetryLocked either arms the next backoff timer or, with the
// budget spent, parks the machine in the terminal failed state.
func (n *Negotiator) scheduleRetryLocked() {
	if n.state == StateFailed || n.retryTimer != nil {
		return
	}

	if n.attempt >= n.cfg.MaxRetries {
		n.cfg.Logger.Error("negotiator: retries exhausted", "attempts", n.attempt)
		n.resetConnLocked()
		n.setState(StateFailed)
		return
	}

	delay := BackoffDelay(n.attempt, n.cfg.RetryBase, n.cfg.RetryCap)
	n.attempt++
	n.setState(StateRetrying)
	n.cfg.Logger.Info("negotiator: scheduling retry", "attempt", n.attempt, "delay", delay)
	n.retryTimer = time.AfterFunc(delay, n.retry)
}

// retry runs when the backoff timer fires. The initiator restarts ICE
// in place when the connection survived; a refused restart falls back
// to a full rebuild whose offer carries the restart flag so the remote
// side discards its prior state. The responder tears down and waits
// for that restart offer. The timer handle is cleared before anything
// else so a fresh retry can always be scheduled afterwards.
func (n *Negotiator) retry() {
	n.mu.Lock()
	n.retryTimer = nil
	if n.closed || n.state != StateRetrying {
		n.mu.Unlock()
		return
	}

	if n.cfg.Role == RoleResponder {
		n.resetConnLocked()
		n.setState(StateIdle)
		n.mu.Unlock()
		return
	}

	var emits []func()
	var err error
	if n.pc != nil {
		emits, err = n.tryRestartOfferLocked()
		if err != nil {
			n.cfg.Logger.Info("negotiator: ICE restart refused, rebuilding", "err", err)
			n.resetConnLocked()
		}
	}
	if n.pc == nil {
		var more []func()
		more, err = n.sendOfferLocked(true)
		emits = append(emits, more...)
	}
	if err != nil {
		n.cfg.Logger.Warn("negotiator: retry failed", "err", err)
	}
	n.mu.Unlock()
	run(emits)
}

// tryRestartOfferLocked asks the live connection for an in-place ICE
// restart offer. Unlike sendOfferLocked a refusal does not burn a
// retry; the caller falls back to rebuilding the connection instead.
func (n *Negotiator) tryRestartOfferLocked() ([]func(), error) {
	n.setState(StateCreatingOffer)

	offer, err := n.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return nil, fmt.Errorf("create restart offer: %w", err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	n.setState(StateOfferSent)
	sdp := offer.SDP
	var emits []func()
	if cb := n.cfg.OnOffer; cb != nil {
		emits = append(emits, func() { cb(sdp, true) })
	}
	return emits, nil
}

// ensureConnLocked creates a connection if none is live, queueing the
// OnConn emit with its generation token.
func (n *Negotiator) ensureConnLocked() ([]func(), error) {
	if n.pc != nil {
		return nil, nil
	}
	pc, err := n.cfg.Factory()
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	n.gen++
	n.pc = pc
	if cb := n.cfg.OnConn; cb != nil {
		gen := n.gen
		return []func(){func() { cb(pc, gen) }}, nil
	}
	return nil, nil
}

// resetConnLocked retires the current connection completely: the
// generation bump detaches its event handlers, the queue scoped to the
// attempt is dropped, and the handle is closed. Safe to call with no
// live connection.
func (n *Negotiator) resetConnLocked() {
	n.gen++
	n.pending = nil
	if n.pc != nil {
		n.pc.Close()
		n.pc = nil
	}
}

func (n *Negotiator) stopTimersLocked() {
	if n.retryTimer != nil {
		n.retryTimer.Stop()
		n.retryTimer = nil
	}
	if n.graceTimer != nil {
		n.graceTimer.Stop()
		n.graceTimer = nil
	}
}

// Close tears the negotiator down. Safe to call multiple times.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.stopTimersLocked()
	n.resetConnLocked()
}

// setState transitions and notifies the observer. Caller holds the
// lock; the observer callback is queued on a fresh goroutine to keep
// it lock-free.
func (n *Negotiator) setState(s State) {
	if n.state == s {
		return
	}
	n.state = s
	if cb := n.cfg.OnState; cb != nil {
		go cb(s)
	}
}

func run(emits []func()) {
	for _, f := range emits {
		f()
	}
}
