package session

import "github.com/1ureka/lobbynet/internal/protocol"

// dedupTable remembers the last accepted sequence per sender. It only catches
// an exact repeat of that last value; it is not a sliding window.
type dedupTable struct {
	last map[protocol.PeerID]uint16
}

func newDedupTable() *dedupTable {
	return &dedupTable{last: make(map[protocol.PeerID]uint16)}
}

// observe reports whether seq from peer is fresh and, if so, records it.
func (d *dedupTable) observe(peer protocol.PeerID, seq uint16) bool {
	if last, ok := d.last[peer]; ok && seq-last == 0 {
		return false
	}
	d.last[peer] = seq
	return true
}

func (d *dedupTable) lookup(peer protocol.PeerID) (uint16, bool) {
	seq, ok := d.last[peer]
	return seq, ok
}

func (d *dedupTable) reset() { clear(d.last) }

func (d *dedupTable) len() int { return len(d.last) }
