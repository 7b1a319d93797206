package bridge

import (
	"bytes"
	"testing"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Frame{Type: "hello", Seq: 3, Body: encodeBody(map[string]string{"nodeId": "n1"})}

	if err := writeFrame(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Type != in.Type || out.Seq != in.Seq {
		t.Fatalf("got %+v, want %+v", out, in)
	}

	var body map[string]string
	if err := decodeBody(out, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["nodeId"] != "n1" {
		t.Fatalf("body = %+v", body)
	}
}

func TestReadFrame_RejectsOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := readFrame(&buf); err == nil {
		t.Fatal("expected an error for a length prefix exceeding maxFrameBytes")
	}
}

func TestWriteReadFrame_MultipleFramesPreserveOrder(t *testing.T) {
	var buf bytes.Buffer
	for i := int64(0); i < 3; i++ {
		if err := writeFrame(&buf, Frame{Type: "ping", Seq: i}); err != nil {
			t.Fatal(err)
		}
	}
	for i := int64(0); i < 3; i++ {
		f, err := readFrame(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if f.Seq != i {
			t.Fatalf("frame %d: seq = %d, want %d", i, f.Seq, i)
		}
	}
}
