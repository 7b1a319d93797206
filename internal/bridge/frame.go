// Package bridge implements the Bridge Server (C9): a length-prefixed JSON
// TCP protocol that lets companion nodes (phones, desktops) attach a duplex
// session to the gateway, plus a websocket-upgraded dashboard channel.
package bridge

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameBytes bounds a single frame to guard against a misbehaving peer
// claiming an unbounded length prefix.
const maxFrameBytes = 8 << 20

// Frame is one length-prefixed JSON envelope on the wire.
type Frame struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq"`
	Body json.RawMessage `json:"body,omitempty"`
}

// writeFrame writes a 4-byte big-endian length prefix followed by the
// JSON-encoded frame.
func writeFrame(w io.Writer, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// readFrame reads one length-prefixed JSON frame.
func readFrame(r io.Reader) (Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return Frame{}, fmt.Errorf("bridge: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(buf, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func decodeBody(f Frame, v interface{}) error {
	if len(f.Body) == 0 {
		return nil
	}
	return json.Unmarshal(f.Body, v)
}

func encodeBody(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
