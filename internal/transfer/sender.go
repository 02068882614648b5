package transfer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/danish296/Code-Drop/internal/config"
	"github.com/danish296/Code-Drop/internal/files"
	"github.com/danish296/Code-Drop/internal/negotiator"
	"github.com/danish296/Code-Drop/internal/signaling"
)

// SenderSession drives the sending side: create a room, wait for the
// receiver, negotiate the connection, stream the files.
type SenderSession struct {
	session

	files []files.FileInfo
	code  string

	// Progress, when set, is called after each chunk with the file
	// index and bytes sent so far.
	Progress func(index int, sent int64)

	drain      chan struct{}
	readyCh    chan ReadyPayload
	completeCh chan struct{}
}

// NewSenderSession wires a sender to an established signaling
// connection.
func NewSenderSession(client *signaling.Client, handler *signaling.Handler, cfg *config.Config, fileList []files.FileInfo) *SenderSession {
	s := &SenderSession{
		session:    newSession(client, handler, cfg),
		files:      fileList,
		drain:      make(chan struct{}, 1),
		readyCh:    make(chan ReadyPayload, 4),
		completeCh: make(chan struct{}, 1),
	}

	s.neg = negotiator.New(negotiator.Config{
		Role: negotiator.RoleInitiator,
		Factory: func() (negotiator.PeerConn, error) {
			return NewPeerConnection(cfg)
		},
		OnOffer: func(sdp string, isRestart bool) {
			s.sendSignal(signaling.TypeOffer, signaling.OfferPayload{
				Target:    s.peer(),
				SDP:       sdp,
				IsRestart: isRestart,
			})
		},
		OnConn:  s.onConn,
		OnState: s.onNegotiatorState,
	})
	return s
}

// CreateRoom registers a room with the relay and returns its code. The
// signal loop starts here and runs until Close.
func (s *SenderSession) CreateRoom() (string, error) {
	go s.signalLoop(nil, s.onAnswer)

	s.sendSignal(signaling.TypeCreateRoom, nil)
	select {
	case code := <-s.handler.RoomCreated:
		s.code = code
		if err := s.neg.AwaitPeer(); err != nil {
			return "", err
		}
		return code, nil
	case <-s.failed:
		return "", s.terminalErr()
	case <-time.After(signalTimeout):
		return "", WrapError("create room", ErrTimeout, "no room-created reply")
	}
}

// WaitForPeer blocks until a receiver joins the room. There is no
// local deadline; the relay closes idle rooms on its own and that
// closure surfaces here as an error.
func (s *SenderSession) WaitForPeer() error {
	select {
	case id := <-s.handler.ReceiverJoined:
		s.setPeer(id)
		return s.neg.PeerJoined()
	case <-s.failed:
		return s.terminalErr()
	case <-s.quit:
		return NewError("wait for peer", ErrChannelClosed)
	}
}

// Connect waits for the negotiated data channel to open.
func (s *SenderSession) Connect() error {
	return s.waitChannelOpen("connect")
}

// Transfer streams every file, honoring the receiver's per-file ready
// requests, then waits for the final acknowledgement.
func (s *SenderSession) Transfer() error {
	meta := MetadataPayload{Files: make([]FileMetadata, len(s.files))}
	for i, f := range s.files {
		meta.Files[i] = FileMetadata{Name: f.Name, Size: f.Size, Type: f.Type}
	}
	if err := s.sendEnvelope(MsgMetadata, meta); err != nil {
		return err
	}

	for i, f := range s.files {
		ready, err := s.awaitReady(f.Name)
		if err != nil {
			return err
		}
		if err := s.sendFile(i, f, ready.Offset); err != nil {
			return err
		}
	}

	select {
	case <-s.completeCh:
		return nil
	case <-s.failed:
		return s.terminalErr()
	case <-time.After(signalTimeout):
		return WrapError("transfer", ErrTimeout, "no completion acknowledgement")
	}
}

// Close tears the session down. The signaling client is owned by the
// caller and stays open.
func (s *SenderSession) Close() {
	s.close()
}

func (s *SenderSession) onAnswer(ans *signaling.RemoteAnswer) {
	if err := s.neg.HandleRemoteAnswer(ans.SDP); err != nil {
		slog.Warn("sender: remote answer rejected", "err", err)
	}
}

// onConn runs for every connection generation the negotiator creates,
// including rebuilds after a failed attempt.
func (s *SenderSession) onConn(pc negotiator.PeerConn, gen int) {
	rtc, ok := pc.(*webrtc.PeerConnection)
	if !ok {
		return
	}
	s.wirePeerEvents(rtc, gen)

	dc, err := newDataChannel(rtc)
	if err != nil {
		s.fail(err)
		return
	}
	s.setChannel(dc)

	dc.SetBufferedAmountLowThreshold(lowWater)
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drain <- struct{}{}:
		default:
		}
	})

	dc.OnOpen(func() {
		s.neg.HandleChannelOpen()
		select {
		case s.channelOpen <- struct{}{}:
		default:
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.handleChannelMessage(msg.Data)
	})
}

// handleChannelMessage routes one protocol message from the receiver.
// The protocol is closed; anything outside it is a peer bug and fails
// the session.
func (s *SenderSession) handleChannelMessage(data []byte) {
	env, err := Decode(data)
	if err != nil {
		slog.Warn("sender: undecodable channel message", "err", err)
		return
	}
	switch env.Type {
	case MsgReady:
		var p ReadyPayload
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("sender: bad ready payload", "err", err)
			return
		}
		s.readyCh <- p
	case MsgComplete:
		select {
		case s.completeCh <- struct{}{}:
		default:
		}
	default:
		s.fail(WrapError("transfer", ErrUnexpectedData, env.Type))
	}
}

func (s *SenderSession) awaitReady(name string) (ReadyPayload, error) {
	select {
	case ready := <-s.readyCh:
		if ready.Name != name {
			return ReadyPayload{}, WrapError("await ready", ErrNameMismatch,
				fmt.Sprintf("asked for %q, next is %q", ready.Name, name))
		}
		return ready, nil
	case <-s.failed:
		return ReadyPayload{}, s.terminalErr()
	case <-time.After(signalTimeout):
		return ReadyPayload{}, WrapError("await ready", ErrTimeout, name)
	}
}

// sendFile streams one file in order from the requested offset,
// waiting out channel backpressure between chunks.
func (s *SenderSession) sendFile(index int, info files.FileInfo, offset int64) error {
	f, err := os.Open(info.Path)
	if err != nil {
		return NewError("open "+info.Name, err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return NewError("seek "+info.Name, err)
		}
	}

	buf := make([]byte, chunkSize)
	sent := offset
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			final := sent+int64(n) >= info.Size
			chunk := ChunkPayload{
				Name:   info.Name,
				Offset: sent,
				Data:   buf[:n],
				Final:  final,
			}
			if err := s.waitForCapacity(); err != nil {
				return err
			}
			if err := s.sendEnvelope(MsgChunk, chunk); err != nil {
				return err
			}
			sent += int64(n)
			if s.Progress != nil {
				s.Progress(index, sent)
			}
			if final {
				return nil
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return NewError("read "+info.Name, readErr)
		}
	}
}

// waitForCapacity blocks while the data channel's send buffer is above
// the high watermark.
func (s *SenderSession) waitForCapacity() error {
	dc := s.channel()
	if dc == nil {
		return NewError("send chunk", ErrChannelClosed)
	}
	if dc.BufferedAmount() < highWater {
		return nil
	}
	select {
	case <-s.drain:
		return nil
	case <-s.failed:
		return s.terminalErr()
	case <-time.After(sendTimeout):
		return WrapError("send chunk", ErrTimeout, "channel backpressure never cleared")
	}
}
