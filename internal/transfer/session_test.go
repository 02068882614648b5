package transfer

import (
	"errors"
	"testing"
	"time"

	"github.com/danish296/Code-Drop/internal/signaling"
)

func TestSignalLoopSurvivesSignalingLoss(t *testing.T) {
	h := signaling.NewHandler(nil)
	s := newSession(nil, h, nil)

	done := make(chan struct{})
	go func() {
		s.signalLoop(nil, nil)
		close(done)
	}()

	close(h.Disconnected)

	select {
	case <-s.failed:
	case <-time.After(2 * time.Second):
		t.Fatal("session never failed after signaling loss")
	}
	if !errors.Is(s.terminalErr(), ErrSignalingLost) {
		t.Fatalf("terminal error = %v, want %v", s.terminalErr(), ErrSignalingLost)
	}

	// The loop keeps draining events after the loss and still honors
	// quit instead of looping on the closed stream.
	h.PeerState <- "disconnected"
	s.close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("signal loop did not stop on close")
	}
}

func TestSenderRejectsOutOfProtocolMessage(t *testing.T) {
	s := &SenderSession{
		session:    newSession(nil, nil, nil),
		readyCh:    make(chan ReadyPayload, 4),
		completeCh: make(chan struct{}, 1),
	}

	// A ready request routes normally.
	data, err := Encode(MsgReady, ReadyPayload{Name: "photo.jpg"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s.handleChannelMessage(data)
	select {
	case ready := <-s.readyCh:
		if ready.Name != "photo.jpg" {
			t.Fatalf("ready.Name = %q", ready.Name)
		}
	default:
		t.Fatal("ready request not routed")
	}

	// A chunk flowing the wrong way is a peer bug and fails the session.
	data, err = Encode(MsgChunk, ChunkPayload{Name: "photo.jpg"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s.handleChannelMessage(data)
	select {
	case <-s.failed:
	default:
		t.Fatal("session survived an out-of-protocol message")
	}
	if !errors.Is(s.terminalErr(), ErrUnexpectedData) {
		t.Fatalf("terminal error = %v, want %v", s.terminalErr(), ErrUnexpectedData)
	}
}

func TestReceiverRejectsOutOfProtocolMessage(t *testing.T) {
	r := &ReceiverSession{
		session: newSession(nil, nil, nil),
		metaCh:  make(chan MetadataPayload, 1),
		chunkCh: make(chan ChunkPayload, 64),
	}

	// Undecodable bytes are logged and dropped, not fatal.
	r.handleChannelMessage([]byte("not msgpack at all"))
	select {
	case <-r.failed:
		t.Fatal("garbage frame failed the session")
	default:
	}

	// A ready request belongs to the sender's side of the protocol.
	data, err := Encode(MsgReady, ReadyPayload{Name: "photo.jpg"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r.handleChannelMessage(data)
	select {
	case <-r.failed:
	default:
		t.Fatal("session survived an out-of-protocol message")
	}
	if !errors.Is(r.terminalErr(), ErrUnexpectedData) {
		t.Fatalf("terminal error = %v, want %v", r.terminalErr(), ErrUnexpectedData)
	}
}
