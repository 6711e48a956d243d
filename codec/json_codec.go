package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec encodes compact JSON, which never contains a raw newline, so one value always fits on
// one line of the stream. Decoding keeps numbers as json.Number when the target is an interface,
// so values the daemon returns pass through without float rounding.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// A record holds exactly one value.
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("codec: trailing data after JSON value")
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
