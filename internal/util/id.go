package util

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/1ureka/lobbynet/internal/protocol"
)

// NewPeerID derives a fresh peer id from a random UUID. The result is never
// the zero sentinel.
func NewPeerID() protocol.PeerID {
	return PeerIDFromSeed(uuid.NewString())
}

// PeerIDFromSeed hashes seed into a peer id (FNV-1a, 64 bit). The hash is used
// solely for identification and does not need to be reversible.
func PeerIDFromSeed(seed string) protocol.PeerID {
	h := fnv.New64a()
	h.Write([]byte(seed))
	id := h.Sum64()
	if id == 0 {
		// Re-hash the empty-result case so zero stays reserved.
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], ^uint64(0))
		h.Write(b[:])
		id = h.Sum64() | 1
	}
	return protocol.PeerID(id)
}
