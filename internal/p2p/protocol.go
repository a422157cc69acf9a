package p2p

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"annalink.dev/annalink/internal/nodeerrors"
)

// Message types exchanged over the wire protocol.
const (
	MsgHandshake      = "handshake"
	MsgGetBlocks      = "get_blocks"
	MsgBlocks         = "blocks"
	MsgNewTransaction = "new_transaction"
	MsgNewBlock       = "new_block"
	MsgGetPeers       = "get_peers"
	MsgPeers          = "peers"
)

// maxFrameLen bounds how large a single incoming frame may claim to be,
// guarding against a peer sending a bogus length prefix that would
// otherwise make readExact allocate without limit.
const maxFrameLen = 64 << 20 // 64 MiB

// Frame is the wire envelope: a message type tag plus its payload. Data
// is left as raw JSON so each handler can unmarshal it into whatever
// shape that message type actually carries.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WriteFrame encodes f as JSON and writes it to w prefixed with its
// 4-byte big-endian length.
func WriteFrame(w io.Writer, f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("%w: encode frame: %v", nodeerrors.ErrMalformedFrame, err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("%w: write length prefix: %v", nodeerrors.ErrNetworkTimeout, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("%w: write frame body: %v", nodeerrors.ErrNetworkTimeout, err)
	}
	return nil
}

// readExact fills buf completely or returns the first error encountered,
// looping over short reads the way a single io.Reader.Read call is not
// guaranteed to avoid.
func readExact(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

// ReadFrame reads one length-prefixed JSON frame from r. A clean EOF
// before any bytes of the next frame's length prefix have arrived is
// returned as io.EOF so callers can close the connection silently
// instead of logging it as a protocol error.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameLen {
		return Frame{}, fmt.Errorf("%w: frame length %d exceeds limit", nodeerrors.ErrMalformedFrame, n)
	}
	body := make([]byte, n)
	if err := readExact(r, body); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", nodeerrors.ErrMalformedFrame, err)
	}
	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: decode frame: %v", nodeerrors.ErrMalformedFrame, err)
	}
	return f, nil
}

// HandshakePayload is the data carried by a handshake message.
type HandshakePayload struct {
	Version    string `json:"version"`
	BestHeight int64  `json:"best_height"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
}

// GetBlocksPayload is the data carried by a get_blocks request.
type GetBlocksPayload struct {
	StartHeight int64 `json:"start_height"`
}

// BlocksPayload is the data carried by a blocks response. Blocks are
// carried as raw JSON so this package does not need to import chaincore
// just to relay them.
type BlocksPayload struct {
	Blocks []json.RawMessage `json:"blocks"`
}

// PeersPayload is the data carried by a peers message.
type PeersPayload struct {
	Peers []*Peer `json:"peers"`
}

func encodeData(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
