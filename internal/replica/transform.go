// Package replica carries application state over the session as envelopes
// of an application kind. Transform replication is the built-in example.
package replica

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/1ureka/lobbynet/internal/protocol"
)

// KindTransformSync is the envelope kind transform snapshots travel under.
const KindTransformSync = protocol.KindAppBase

const (
	ownerSize     = 8
	transformSize = 7 * 4
	// TransformPayloadSize is the encoded size of one owned transform.
	TransformPayloadSize = ownerSize + transformSize
)

var ErrShortTransform = errors.New("transform payload too short")

// Transform is a position and a rotation quaternion.
type Transform struct {
	Position [3]float32 // x, y, z
	Rotation [4]float32 // x, y, z, w
}

// Identity is the zero position with no rotation.
var Identity = Transform{Rotation: [4]float32{0, 0, 0, 1}}

// EncodeTransform lays out [owner:8][px py pz qx qy qz qw], little-endian.
func EncodeTransform(owner protocol.PeerID, t Transform) []byte {
	buf := make([]byte, TransformPayloadSize)
	binary.LittleEndian.PutUint64(buf, uint64(owner))

	o := ownerSize
	for _, f := range t.Position {
		binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(f))
		o += 4
	}
	for _, f := range t.Rotation {
		binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(f))
		o += 4
	}
	return buf
}

// DecodeTransform parses a payload written by EncodeTransform. Extra bytes
// after the transform are ignored.
func DecodeTransform(payload []byte) (protocol.PeerID, Transform, error) {
	if len(payload) < TransformPayloadSize {
		return 0, Transform{}, fmt.Errorf("%w: %d bytes (need %d)", ErrShortTransform, len(payload), TransformPayloadSize)
	}

	owner := protocol.PeerID(binary.LittleEndian.Uint64(payload))

	var t Transform
	o := ownerSize
	for i := range t.Position {
		t.Position[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[o:]))
		o += 4
	}
	for i := range t.Rotation {
		t.Rotation[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[o:]))
		o += 4
	}
	return owner, t, nil
}
