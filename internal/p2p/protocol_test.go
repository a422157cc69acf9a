package p2p

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"annalink.dev/annalink/internal/nodeerrors"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Frame{Type: MsgGetBlocks, Data: encodeData(GetBlocksPayload{StartHeight: 7})}
	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	out, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if out.Type != MsgGetBlocks {
		t.Fatalf("frame type = %q, want %q", out.Type, MsgGetBlocks)
	}
	var payload GetBlocksPayload
	if err := json.Unmarshal(out.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.StartHeight != 7 {
		t.Fatalf("start height = %d, want 7", payload.StartHeight)
	}
}

func TestReadFrameEmptyReaderReturnsEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("ReadFrame on empty reader = %v, want io.EOF", err)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], maxFrameLen+1)
	buf.Write(lenPrefix[:])

	_, err := ReadFrame(&buf)
	if !errors.Is(err, nodeerrors.ErrMalformedFrame) {
		t.Fatalf("ReadFrame with oversized length = %v, want ErrMalformedFrame", err)
	}
}

func TestReadFrameTruncatedBodyErrors(t *testing.T) {
	var buf bytes.Buffer
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], 100)
	buf.Write(lenPrefix[:])
	buf.WriteString(`{"type":`) // far fewer than 100 bytes, then EOF

	if _, err := ReadFrame(&buf); err == nil {
		t.Fatalf("ReadFrame with truncated body: want error, got nil")
	}
}

func TestReadFrameRejectsNonJSONBody(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("this is not json")
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	buf.Write(lenPrefix[:])
	buf.Write(body)

	_, err := ReadFrame(&buf)
	if !errors.Is(err, nodeerrors.ErrMalformedFrame) {
		t.Fatalf("ReadFrame with non-JSON body = %v, want ErrMalformedFrame", err)
	}
}
