package transfer

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/danish296/Code-Drop/internal/config"
	"github.com/danish296/Code-Drop/internal/negotiator"
	"github.com/danish296/Code-Drop/internal/signaling"
)

const (
	// signalTimeout bounds each negotiation step (room reply, offer,
	// channel open).
	signalTimeout = 30 * time.Second

	// sendTimeout bounds a single backpressure wait while streaming.
	sendTimeout = 60 * time.Second

	chunkSize = 16 * 1024
	highWater = 1 << 20
	lowWater  = 512 << 10
)

// session carries the pieces shared by both transfer roles: the
// signaling client, the negotiator, and the current peer identity and
// data channel.
type session struct {
	client  *signaling.Client
	handler *signaling.Handler
	cfg     *config.Config
	neg     *negotiator.Negotiator

	mu     sync.Mutex
	peerID string
	dc     *webrtc.DataChannel

	channelOpen chan struct{}
	failed      chan struct{}
	failErr     error
	failOnce    sync.Once
	quit        chan struct{}
	quitOnce    sync.Once
}

func newSession(client *signaling.Client, handler *signaling.Handler, cfg *config.Config) session {
	return session{
		client:      client,
		handler:     handler,
		cfg:         cfg,
		channelOpen: make(chan struct{}, 1),
		failed:      make(chan struct{}),
		quit:        make(chan struct{}),
	}
}

// fail records the first terminal error; later ones lose the race and
// are dropped. Every phase of the session observes the same failure
// through the failed channel.
func (s *session) fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failed)
	})
}

// terminalErr reads the recorded failure. Only valid after failed is
// closed.
func (s *session) terminalErr() error {
	return s.failErr
}

func (s *session) setPeer(id string) {
	s.mu.Lock()
	s.peerID = id
	s.mu.Unlock()
}

func (s *session) peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

func (s *session) setChannel(dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()
}

func (s *session) channel() *webrtc.DataChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dc
}

func (s *session) sendSignal(msgType string, payload any) {
	s.client.Send(signaling.NewMessage(msgType, payload))
}

// sendEnvelope frames and ships one protocol message over the data
// channel.
func (s *session) sendEnvelope(msgType string, payload any) error {
	dc := s.channel()
	if dc == nil {
		return NewError("send "+msgType, ErrChannelClosed)
	}
	data, err := Encode(msgType, payload)
	if err != nil {
		return NewError("encode "+msgType, err)
	}
	return dc.Send(data)
}

// wirePeerEvents attaches connection-level callbacks for one peer
// connection generation. Events from superseded generations are
// filtered inside the negotiator.
func (s *session) wirePeerEvents(pc *webrtc.PeerConnection, gen int) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			slog.Warn("transfer: marshal ICE candidate", "err", err)
			return
		}
		s.sendSignal(signaling.TypeCandidate, signaling.CandidatePayload{
			Target:    s.peer(),
			Candidate: raw,
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("transfer: connection state", "gen", gen, "state", state.String())
		s.sendSignal(signaling.TypeStateChange, signaling.StatePayload{State: state.String()})
		s.neg.HandleConnectionState(gen, state)
	})
}

// onNegotiatorState surfaces the negotiator's terminal failure.
func (s *session) onNegotiatorState(state negotiator.State) {
	if state == negotiator.StateFailed {
		s.fail(negotiator.ErrRetryExhausted)
	}
}

// signalLoop pumps relayed events into the negotiator until the
// session ends. Role-specific events are handled by the callbacks;
// everything terminal funnels through fail.
func (s *session) signalLoop(onOffer func(*signaling.RemoteOffer), onAnswer func(*signaling.RemoteAnswer)) {
	// Disconnected is a closed channel, not a one-shot send; disable the
	// case after the first fire so the loop does not spin on it.
	disconnected := s.handler.Disconnected
	for {
		select {
		case off := <-s.handler.Offer:
			if onOffer != nil {
				onOffer(off)
			}

		case ans := <-s.handler.Answer:
			if onAnswer != nil {
				onAnswer(ans)
			}

		case cand := <-s.handler.Candidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal(cand.Candidate, &init); err != nil {
				slog.Warn("transfer: bad remote candidate", "err", err)
				continue
			}
			s.neg.HandleRemoteCandidate(init)

		case state := <-s.handler.PeerState:
			slog.Debug("transfer: peer reported state", "state", state)

		case pd := <-s.handler.PeerDisconnected:
			s.fail(WrapError("session", ErrPeerDisconnected, pd.Reason))

		case reason := <-s.handler.RoomClosed:
			s.fail(WrapError("session", ErrRoomClosed, reason))

		case serverErr := <-s.handler.Errors:
			s.fail(WrapError("session", ErrSignalingError, serverErr.Error()))

		case <-disconnected:
			s.fail(NewError("session", ErrSignalingLost))
			disconnected = nil

		case <-s.quit:
			return
		}
	}
}

// waitChannelOpen blocks until the data channel opens, the session
// fails, or the step times out.
func (s *session) waitChannelOpen(op string) error {
	select {
	case <-s.channelOpen:
		return nil
	case <-s.failed:
		return s.terminalErr()
	case <-time.After(signalTimeout):
		return WrapError(op, ErrTimeout, "data channel never opened")
	}
}

// close releases the session's own resources. The signaling client
// belongs to the caller. Safe to call multiple times.
func (s *session) close() {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.neg != nil {
		s.neg.Close()
	}
}
