package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed header size: Kind(1) + Seq(2) + Tick(4) + Len(2).
const HeaderSize = 9

// MaxPayloadSize is the largest payload the 16-bit length field can describe.
const MaxPayloadSize = 0xFFFF

var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrTruncated       = errors.New("frame truncated")
)

// Encode serializes an envelope as [kind:1][seq:2][tick:4][len:2][payload],
// little-endian.
func Encode(env Envelope) ([]byte, error) {
	if len(env.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(env.Payload), MaxPayloadSize)
	}
	buf := make([]byte, HeaderSize+len(env.Payload))
	buf[0] = byte(env.Kind)
	binary.LittleEndian.PutUint16(buf[1:3], env.Seq)
	binary.LittleEndian.PutUint32(buf[3:7], env.Tick)
	binary.LittleEndian.PutUint16(buf[7:9], uint16(len(env.Payload)))
	copy(buf[HeaderSize:], env.Payload)
	return buf, nil
}

// Decode parses one frame. Unknown kinds are not an error. Bytes past the
// declared payload length are ignored, and the payload never aliases data.
func Decode(data []byte) (Envelope, error) {
	if len(data) < HeaderSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes (need at least %d)", ErrTruncated, len(data), HeaderSize)
	}
	n := int(binary.LittleEndian.Uint16(data[7:9]))
	if HeaderSize+n > len(data) {
		return Envelope{}, fmt.Errorf("%w: declared %d payload bytes, have %d", ErrTruncated, n, len(data)-HeaderSize)
	}
	env := Envelope{
		Kind:    Kind(data[0]),
		Seq:     binary.LittleEndian.Uint16(data[1:3]),
		Tick:    binary.LittleEndian.Uint32(data[3:7]),
		Payload: make([]byte, n),
	}
	copy(env.Payload, data[HeaderSize:HeaderSize+n])
	return env, nil
}
