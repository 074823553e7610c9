package transport

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/lobbynet/internal/protocol"
)

// relaySwitch stands in for the lobby hub: it forwards signals between
// fakeRelays in order, one goroutine per receiver.
type relaySwitch struct {
	mu     sync.Mutex
	relays map[protocol.PeerID]*fakeRelay
}

type relayed struct {
	from    protocol.PeerID
	payload json.RawMessage
}

type fakeRelay struct {
	self   protocol.PeerID
	sw     *relaySwitch
	queue  chan relayed
	mu     sync.Mutex
	signal func(protocol.PeerID, json.RawMessage)
	roster func([]protocol.PeerID)
}

func newRelaySwitch() *relaySwitch {
	return &relaySwitch{relays: make(map[protocol.PeerID]*fakeRelay)}
}

func (s *relaySwitch) join(t *testing.T, peer protocol.PeerID) *fakeRelay {
	r := &fakeRelay{self: peer, sw: s, queue: make(chan relayed, 256)}
	s.mu.Lock()
	s.relays[peer] = r
	s.mu.Unlock()

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case m := <-r.queue:
				r.mu.Lock()
				fn := r.signal
				r.mu.Unlock()
				if fn != nil {
					fn(m.from, m.payload)
				}
			case <-done:
				return
			}
		}
	}()
	return r
}

func (r *fakeRelay) Self() protocol.PeerID { return r.self }

func (r *fakeRelay) SendSignal(to protocol.PeerID, payload json.RawMessage) error {
	r.sw.mu.Lock()
	dst := r.sw.relays[to]
	r.sw.mu.Unlock()
	if dst != nil {
		dst.queue <- relayed{from: r.self, payload: payload}
	}
	return nil
}

func (r *fakeRelay) OnSignal(fn func(protocol.PeerID, json.RawMessage)) {
	r.mu.Lock()
	r.signal = fn
	r.mu.Unlock()
}

func (r *fakeRelay) OnRoster(fn func([]protocol.PeerID)) {
	r.mu.Lock()
	r.roster = fn
	r.mu.Unlock()
}

func (r *fakeRelay) setRoster(members ...protocol.PeerID) {
	r.mu.Lock()
	fn := r.roster
	r.mu.Unlock()
	fn(members)
}

func TestMeshConnectsAndCarriesEnvelopes(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real WebRTC connections")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := newRelaySwitch()
	ra := sw.join(t, 1001)
	rb := sw.join(t, 1002)

	opts := Options{STUNServers: []string{"stun:127.0.0.1:3478"}}
	ma := NewMesh(ctx, ra, opts)
	mb := NewMesh(ctx, rb, opts)
	defer ma.Close()
	defer mb.Close()

	rb.setRoster(1001, 1002)
	ra.setRoster(1001, 1002)

	require.Eventually(t, func() bool {
		return ma.Connected(1002) && mb.Connected(1001)
	}, 15*time.Second, 20*time.Millisecond)

	ma.Send(1002, protocol.Envelope{Kind: protocol.KindChat, Seq: 7, Payload: []byte("over the wire")}, protocol.Reliable)

	buf := make([]protocol.Received, 4)
	var n int
	require.Eventually(t, func() bool {
		n = mb.Receive(buf)
		return n > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, protocol.PeerID(1001), buf[0].From)
	assert.Equal(t, uint16(7), buf[0].Envelope.Seq)
	assert.Equal(t, "over the wire", string(buf[0].Envelope.Payload))

	// Leaving the roster tears the link down.
	ra.setRoster(1001)
	assert.Empty(t, ma.Peers())
	assert.False(t, ma.Connected(1002))
}

func TestMeshDropsSendsWithoutLink(t *testing.T) {
	sw := newRelaySwitch()
	m := NewMesh(context.Background(), sw.join(t, 1001), Options{})
	defer m.Close()

	m.Send(1002, protocol.Envelope{Kind: protocol.KindChat}, protocol.Reliable)
	assert.Zero(t, m.Receive(make([]protocol.Received, 2)))

	m.Send(1001, protocol.Envelope{Kind: protocol.KindChat, Seq: 4}, protocol.Reliable)
	buf := make([]protocol.Received, 2)
	require.Equal(t, 1, m.Receive(buf))
	assert.Equal(t, protocol.PeerID(1001), buf[0].From)
}

func TestMeshOnlySmallerPeerOffers(t *testing.T) {
	sw := newRelaySwitch()
	rb := sw.join(t, 1002)
	mb := NewMesh(context.Background(), rb, Options{})
	defer mb.Close()

	// 1002 waits for 1001's offer instead of creating a link itself.
	rb.setRoster(1001, 1002)
	assert.Empty(t, mb.Peers())
}

func TestMeshIgnoresMalformedSignals(t *testing.T) {
	sw := newRelaySwitch()
	m := NewMesh(context.Background(), sw.join(t, 1001), Options{})
	defer m.Close()

	m.handleSignal(1002, json.RawMessage(`not json`))
	m.handleSignal(1002, encodeSignal(signal{Type: sigAnswer, SDP: "v=0"}))
	m.handleSignal(1002, encodeSignal(signal{Type: sigCandidate, Candidate: `{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host"}`}))
	assert.Empty(t, m.Peers())

	m.mu.Lock()
	assert.Len(t, m.early[1002], 1, "candidate held until the offer arrives")
	m.mu.Unlock()

	m.syncRoster([]protocol.PeerID{1001})
	m.mu.Lock()
	assert.Empty(t, m.early)
	m.mu.Unlock()
}
