package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"fgp-rpc/codec"
	"fgp-rpc/message"
	"fgp-rpc/rpcerr"
)

func TestWriteReadFrame(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"ok":true}`)
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if got := buf.String(); got != "{\"ok\":true}\n" {
		t.Fatalf("unexpected wire bytes: %q", got)
	}

	frame, err := ReadFrame(bufio.NewReader(&buf), 0)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(frame, body) {
		t.Errorf("Body mismatch: got %s, want %s", frame, body)
	}
}

func TestWriteFrameRejectsEmbeddedTerminator(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("a\nb")); !errors.Is(err, ErrEmbeddedTerminator) {
		t.Fatalf("expect ErrEmbeddedTerminator, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("expect nothing written")
	}
}

func TestReadFrameAccumulatesPartialReads(t *testing.T) {
	payload := `{"ok":true,"result":{"text":"` + strings.Repeat("y", 10000) + `"}}` + "\n"
	// OneByteReader forces one byte per Read; a tiny bufio buffer forces ErrBufferFull rounds.
	r := bufio.NewReaderSize(iotest.OneByteReader(strings.NewReader(payload)), 16)

	frame, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if len(frame) != len(payload)-1 {
		t.Fatalf("expect %d bytes, got %d", len(payload)-1, len(frame))
	}
}

func TestReadFrameStopsAtFirstTerminator(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("first\nsecond\n"))

	frame, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if string(frame) != "first" {
		t.Fatalf("expect first record, got %q", frame)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "second\n" {
		t.Fatalf("expect the second record untouched, got %q", rest)
	}
}

func TestReadFrameUnterminated(t *testing.T) {
	cases := []string{"", `{"ok":true}`}
	for _, in := range cases {
		_, err := ReadFrame(bufio.NewReader(strings.NewReader(in)), 0)
		if !errors.Is(err, ErrUnterminated) {
			t.Fatalf("input %q: expect ErrUnterminated, got %v", in, err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("input %q: expect io.ErrUnexpectedEOF in chain", in)
		}
	}
}

func TestReadFrameSizeLimit(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(strings.Repeat("z", 64) + "\n"))
	if _, err := ReadFrame(r, 32); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expect ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameToleratesCRLF(t *testing.T) {
	frame, err := ReadFrame(bufio.NewReader(strings.NewReader("{\"ok\":true}\r\n")), 0)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if string(frame) != `{"ok":true}` {
		t.Fatalf("unexpected frame: %q", frame)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	c := codec.Default()
	var buf bytes.Buffer

	req := message.NewRequest("fly.machines", map[string]any{"app": "web"})
	if err := EncodeRequest(&buf, c, req); err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	decodedReq, err := DecodeRequest(bufio.NewReader(&buf), c, 0)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if decodedReq.ID != req.ID || decodedReq.Method != req.Method {
		t.Fatalf("request mismatch: got %+v, want %+v", decodedReq, req)
	}

	for _, ok := range []bool{true, false} {
		buf.Reset()
		resp := message.Failure(req.ID, "nope")
		if ok {
			resp, _ = message.Success(req.ID, map[string]any{"machines": []any{}})
		}
		if err := EncodeResponse(&buf, c, resp); err != nil {
			t.Fatalf("EncodeResponse failed: %v", err)
		}
		decoded, err := DecodeResponse(bufio.NewReader(&buf), c, 0)
		if err != nil {
			t.Fatalf("DecodeResponse failed: %v", err)
		}
		if decoded.OK != ok {
			t.Fatalf("ok mismatch: got %v, want %v", decoded.OK, ok)
		}
		if decoded.ID != req.ID {
			t.Fatalf("id mismatch: got %s, want %s", decoded.ID, req.ID)
		}
	}
}

func TestEncodeRequestValidates(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeRequest(&buf, codec.Default(), message.NewRequest("", nil))
	if !errors.Is(err, message.ErrEmptyMethod) {
		t.Fatalf("expect ErrEmptyMethod, got %v", err)
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":   "hello\n",
		"missing ok": "{\"result\":{}}\n",
		"array":      "[1,2]\n",
	}
	for name, in := range cases {
		_, err := DecodeResponse(bufio.NewReader(strings.NewReader(in)), codec.Default(), 0)
		if !rpcerr.IsMalformed(err) {
			t.Fatalf("%s: expect MalformedResponseError, got %v", name, err)
		}
	}
}
