package transfer

import "github.com/vmihailenco/msgpack/v5"

const dataChannelLabel = "file-transfer"

// Data channel message types. The file payload is opaque to the
// negotiation core; this protocol only exists so two CLI peers agree
// on framing once the channel is open.
const (
	MsgMetadata = "metadata"
	MsgReady    = "ready"
	MsgChunk    = "chunk"
	MsgComplete = "complete"
)

// Envelope frames every data channel message.
type Envelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// FileMetadata describes one offered file.
type FileMetadata struct {
	Name string `msgpack:"name"`
	Size int64  `msgpack:"size"`
	Type string `msgpack:"type"`
}

// MetadataPayload lists every file the sender offers, in send order.
type MetadataPayload struct {
	Files []FileMetadata `msgpack:"files"`
}

// ReadyPayload is the receiver requesting one file, optionally
// resuming from an offset.
type ReadyPayload struct {
	Name   string `msgpack:"name"`
	Offset int64  `msgpack:"offset"`
}

// ChunkPayload carries file bytes.
type ChunkPayload struct {
	Name   string `msgpack:"name"`
	Offset int64  `msgpack:"offset"`
	Data   []byte `msgpack:"data"`
	Final  bool   `msgpack:"final"`
}

// Encode frames a payload for the data channel.
func Encode(msgType string, payload any) ([]byte, error) {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = msgpack.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return msgpack.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Decode unframes a data channel message.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func (e *Envelope) DecodePayload(dst any) error {
	return msgpack.Unmarshal(e.Payload, dst)
}
