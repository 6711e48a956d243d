// Package codec turns envelopes into the structured-text bytes carried inside a frame.
//
// The daemon protocol only speaks JSON; the interface stays so the framer and server depend on
// behaviour rather than on encoding/json directly.
package codec

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// Default returns the codec used on the daemon socket.
func Default() Codec {
	return &JSONCodec{}
}
