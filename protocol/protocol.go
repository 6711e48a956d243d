// Package protocol implements the newline-delimited frame format spoken on the daemon socket.
//
// A frame is one structured-text record followed by exactly one line terminator. Because the
// codec never emits a raw newline, the first '\n' on the stream always ends the record:
//
//	┌──────────────────────────────────────────────┬────┐
//	│ {"id":"…","v":1,"method":"…","params":{…}}    │ \n │
//	└──────────────────────────────────────────────┴────┘
//
// The reader accumulates partial reads until the terminator shows up, and treats a stream that
// ends first as an error rather than waiting forever.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

const Terminator byte = '\n'

var (
	// ErrUnterminated is returned when the peer closes the stream before sending a terminator.
	ErrUnterminated = fmt.Errorf("protocol: stream closed before frame terminator: %w", io.ErrUnexpectedEOF)
	// ErrEmbeddedTerminator is returned when a body would be split into two frames.
	ErrEmbeddedTerminator = errors.New("protocol: frame body contains a line terminator")
	// ErrFrameTooLarge is returned when a frame exceeds the reader's configured limit.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds size limit")
)

// WriteFrame writes body followed by the terminator in a single Write call.
func WriteFrame(w io.Writer, body []byte) error {
	if bytes.IndexByte(body, Terminator) >= 0 {
		return ErrEmbeddedTerminator
	}
	buf := make([]byte, 0, len(body)+1)
	buf = append(buf, body...)
	buf = append(buf, Terminator)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame and returns it without the terminator.
//
// bufio.Reader stops at the first terminator, so nothing past it is consumed by the caller; any
// extra bytes the underlying read pulled in stay in r's buffer. maxSize <= 0 means no limit.
func ReadFrame(r *bufio.Reader, maxSize int) ([]byte, error) {
	var frame []byte
	for {
		chunk, err := r.ReadSlice(Terminator)
		frame = append(frame, chunk...)
		if maxSize > 0 && len(frame) > maxSize+1 {
			return nil, ErrFrameTooLarge
		}
		switch {
		case err == nil:
			// Trailing "\r" is tolerated for peers that write CRLF.
			return bytes.TrimSuffix(frame[:len(frame)-1], []byte{'\r'}), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return nil, ErrUnterminated
		default:
			return nil, err
		}
	}
}
