package transfer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/danish296/Code-Drop/internal/config"
	"github.com/danish296/Code-Drop/internal/negotiator"
	"github.com/danish296/Code-Drop/internal/signaling"
)

// ReceiverSession drives the receiving side: join a room by code,
// answer the sender's offer, pull the files down.
type ReceiverSession struct {
	session

	outDir string

	// Progress, when set, is called after each chunk with the file
	// index and bytes received so far.
	Progress func(index int, received int64)

	metaCh  chan MetadataPayload
	chunkCh chan ChunkPayload

	meta  []FileMetadata
	saved []string
}

// NewReceiverSession wires a receiver to an established signaling
// connection. Files land in outDir.
func NewReceiverSession(client *signaling.Client, handler *signaling.Handler, cfg *config.Config, outDir string) *ReceiverSession {
	r := &ReceiverSession{
		session: newSession(client, handler, cfg),
		outDir:  outDir,
		metaCh:  make(chan MetadataPayload, 1),
		chunkCh: make(chan ChunkPayload, 64),
	}

	r.neg = negotiator.New(negotiator.Config{
		Role: negotiator.RoleResponder,
		Factory: func() (negotiator.PeerConn, error) {
			return NewPeerConnection(cfg)
		},
		OnAnswer: func(sdp string) {
			r.sendSignal(signaling.TypeAnswer, signaling.AnswerPayload{
				Target: r.peer(),
				SDP:    sdp,
			})
		},
		OnConn:  r.onConn,
		OnState: r.onNegotiatorState,
	})
	return r
}

// Join enters the room identified by code. The signal loop starts here
// and runs until Close.
func (r *ReceiverSession) Join(code string) error {
	go r.signalLoop(r.onOffer, nil)

	r.sendSignal(signaling.TypeJoinRoom, signaling.JoinPayload{Code: code})
	select {
	case <-r.handler.RoomJoined:
		return nil
	case <-r.failed:
		return r.terminalErr()
	case <-time.After(signalTimeout):
		return WrapError("join room", ErrTimeout, "no room-joined reply")
	}
}

// Connect waits for the sender's data channel to open.
func (r *ReceiverSession) Connect() error {
	return r.waitChannelOpen("connect")
}

// AwaitMetadata blocks until the sender announces its file list.
func (r *ReceiverSession) AwaitMetadata() ([]FileMetadata, error) {
	select {
	case meta := <-r.metaCh:
		r.meta = meta.Files
		return meta.Files, nil
	case <-r.failed:
		return nil, r.terminalErr()
	case <-time.After(signalTimeout):
		return nil, WrapError("await metadata", ErrTimeout, "sender never sent a file list")
	}
}

// Receive pulls every announced file, requesting them one at a time in
// the order the sender listed them, then acknowledges completion.
func (r *ReceiverSession) Receive() error {
	for i, meta := range r.meta {
		if err := r.receiveFile(i, meta); err != nil {
			return err
		}
	}
	return r.sendEnvelope(MsgComplete, nil)
}

// SavedPaths lists where the received files were written, in transfer
// order.
func (r *ReceiverSession) SavedPaths() []string {
	return r.saved
}

// Close tears the session down. The signaling client is owned by the
// caller and stays open.
func (r *ReceiverSession) Close() {
	r.close()
}

func (r *ReceiverSession) onOffer(off *signaling.RemoteOffer) {
	r.setPeer(off.SenderID)
	if err := r.neg.HandleRemoteOffer(off.SDP, off.IsRestart); err != nil {
		slog.Warn("receiver: remote offer rejected", "err", err)
	}
}

func (r *ReceiverSession) onConn(pc negotiator.PeerConn, gen int) {
	rtc, ok := pc.(*webrtc.PeerConnection)
	if !ok {
		return
	}
	r.wirePeerEvents(rtc, gen)

	rtc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != dataChannelLabel {
			slog.Debug("receiver: ignoring channel", "label", dc.Label())
			return
		}
		r.setChannel(dc)

		dc.OnOpen(func() {
			r.neg.HandleChannelOpen()
			select {
			case r.channelOpen <- struct{}{}:
			default:
			}
		})

		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			r.handleChannelMessage(msg.Data)
		})
	})
}

// handleChannelMessage routes one protocol message from the sender.
// The protocol is closed; anything outside it is a peer bug and fails
// the session.
func (r *ReceiverSession) handleChannelMessage(data []byte) {
	env, err := Decode(data)
	if err != nil {
		slog.Warn("receiver: undecodable channel message", "err", err)
		return
	}
	switch env.Type {
	case MsgMetadata:
		var p MetadataPayload
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("receiver: bad metadata payload", "err", err)
			return
		}
		select {
		case r.metaCh <- p:
		default:
		}
	case MsgChunk:
		var p ChunkPayload
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("receiver: bad chunk payload", "err", err)
			return
		}
		r.chunkCh <- p
	default:
		r.fail(WrapError("receive", ErrUnexpectedData, env.Type))
	}
}

// receiveFile requests one file and writes its chunks until the final
// one arrives.
func (r *ReceiverSession) receiveFile(index int, meta FileMetadata) error {
	path, err := uniquePath(r.outDir, meta.Name)
	if err != nil {
		return NewError("prepare "+meta.Name, err)
	}

	out, err := os.Create(path)
	if err != nil {
		return NewError("create "+meta.Name, err)
	}
	defer out.Close()

	if err := r.sendEnvelope(MsgReady, ReadyPayload{Name: meta.Name}); err != nil {
		return err
	}

	var received int64
	for {
		select {
		case chunk := <-r.chunkCh:
			if chunk.Name != meta.Name {
				return WrapError("receive "+meta.Name, ErrNameMismatch, chunk.Name)
			}
			if _, err := out.Write(chunk.Data); err != nil {
				return NewError("write "+meta.Name, err)
			}
			received += int64(len(chunk.Data))
			if r.Progress != nil {
				r.Progress(index, received)
			}
			if chunk.Final {
				r.saved = append(r.saved, path)
				return nil
			}
		case <-r.failed:
			return r.terminalErr()
		case <-time.After(sendTimeout):
			return WrapError("receive "+meta.Name, ErrTimeout, "no chunk arrived")
		}
	}
}

// uniquePath picks a collision-free destination for an incoming file.
// The name is flattened to its base so a peer cannot write outside the
// output directory.
func uniquePath(dir, name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename %q", name)
	}

	path := filepath.Join(dir, base)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; i < 1000; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free filename for %q", name)
}
