package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"fgp-rpc/codec"
	"fgp-rpc/message"
	"fgp-rpc/rpcerr"
)

// EncodeRequest validates req and writes it as one frame.
func EncodeRequest(w io.Writer, c codec.Codec, req *message.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	body, err := c.Encode(req)
	if err != nil {
		return fmt.Errorf("protocol: encode request: %w", err)
	}
	return WriteFrame(w, body)
}

// DecodeResponse reads one frame and parses it into a response envelope.
//
// I/O failures (including ErrUnterminated) are returned unchanged so the transport can classify
// them; a frame that arrives but does not parse is a *rpcerr.MalformedResponseError.
func DecodeResponse(r *bufio.Reader, c codec.Codec, maxSize int) (*message.Response, error) {
	frame, err := ReadFrame(r, maxSize)
	if err != nil {
		if errors.Is(err, ErrFrameTooLarge) {
			return nil, rpcerr.NewMalformed("frame too large", nil, err)
		}
		return nil, err
	}
	resp := &message.Response{}
	if err := c.Decode(frame, resp); err != nil {
		reason := "invalid response envelope"
		if errors.Is(err, message.ErrMissingOK) {
			reason = `missing "ok" field`
		}
		return nil, rpcerr.NewMalformed(reason, frame, err)
	}
	return resp, nil
}

// DecodeRequest is the daemon-side mirror of EncodeRequest.
func DecodeRequest(r *bufio.Reader, c codec.Codec, maxSize int) (*message.Request, error) {
	frame, err := ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	req := &message.Request{}
	if err := c.Decode(frame, req); err != nil {
		return nil, fmt.Errorf("protocol: decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// EncodeResponse is the daemon-side mirror of DecodeResponse.
func EncodeResponse(w io.Writer, c codec.Codec, resp *message.Response) error {
	body, err := c.Encode(resp)
	if err != nil {
		return fmt.Errorf("protocol: encode response: %w", err)
	}
	return WriteFrame(w, body)
}
