// Package transport moves envelopes between lobby members. Mesh is the
// WebRTC implementation; Switchboard and Null serve tests and offline use.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/lobbynet/internal/metrics"
	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/util"
)

// Options tunes a Mesh. Zero values select defaults.
type Options struct {
	STUNServers []string
	InboxSize   int
}

// Mesh keeps one WebRTC link to every other member of the current lobby.
// Of each pair, the peer with the smaller id sends the offer. Send and
// Receive are safe to call from the tick goroutine while the relay and pion
// callbacks run elsewhere.
type Mesh struct {
	self  protocol.PeerID
	relay Relay
	opts  Options
	inbox *inbox

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	links  map[protocol.PeerID]*link
	early  map[protocol.PeerID][]webrtc.ICECandidateInit // candidates that beat their offer
	closed bool
}

// NewMesh wires a mesh to relay. Links come and go with the relay's roster
// until ctx is cancelled or Close is called.
func NewMesh(ctx context.Context, relay Relay, opts Options) *Mesh {
	mctx, cancel := context.WithCancel(ctx)
	m := &Mesh{
		self:   relay.Self(),
		relay:  relay,
		opts:   opts,
		inbox:  newInbox(opts.InboxSize),
		ctx:    mctx,
		cancel: cancel,
		links:  make(map[protocol.PeerID]*link),
		early:  make(map[protocol.PeerID][]webrtc.ICECandidateInit),
	}
	relay.OnRoster(m.syncRoster)
	relay.OnSignal(m.handleSignal)
	return m
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send encodes env and queues it on the link to peer. Frames for peers
// without an open channel are dropped and counted.
func (m *Mesh) Send(to protocol.PeerID, env protocol.Envelope, rel protocol.Reliability) {
	if to == m.self {
		m.inbox.push(protocol.Received{From: m.self, Envelope: env})
		return
	}

	m.mu.Lock()
	l := m.links[to]
	m.mu.Unlock()

	if l == nil || !l.isOpen(rel) {
		metrics.TransportDrops.WithLabelValues(metrics.DropNoLink).Inc()
		util.Stats.AddDropped()
		return
	}

	frame, err := protocol.Encode(env)
	if err != nil {
		util.LogDebugKV("dropping unencodable envelope", "peer", to, "err", err)
		metrics.TransportDrops.WithLabelValues(metrics.DropBadFrame).Inc()
		util.Stats.AddDropped()
		return
	}
	if !l.send(rel, frame) {
		metrics.TransportDrops.WithLabelValues(metrics.DropSendFailed).Inc()
		util.Stats.AddDropped()
	}
}

// Receive drains up to len(buf) decoded messages without blocking.
func (m *Mesh) Receive(buf []protocol.Received) int {
	return m.inbox.drain(buf)
}

// Peers returns the remote peers that currently have a link, sorted.
func (m *Mesh) Peers() []protocol.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers := make([]protocol.PeerID, 0, len(m.links))
	for p := range m.links {
		peers = append(peers, p)
	}
	slices.Sort(peers)
	return peers
}

// Connected reports whether the reliable channel to peer is open.
func (m *Mesh) Connected(peer protocol.PeerID) bool {
	m.mu.Lock()
	l := m.links[peer]
	m.mu.Unlock()
	return l != nil && l.isOpen(protocol.Reliable)
}

// Close tears down every link. Further roster and signal events are ignored.
func (m *Mesh) Close() error {
	m.cancel()

	m.mu.Lock()
	m.closed = true
	links := m.links
	m.links = make(map[protocol.PeerID]*link)
	m.mu.Unlock()

	var errs []error
	for _, l := range links {
		errs = append(errs, l.close())
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Roster
// ---------------------------------------------------------------------------

func (m *Mesh) syncRoster(members []protocol.PeerID) {
	want := make(map[protocol.PeerID]bool, len(members))
	for _, p := range members {
		want[p] = true
	}

	var stale []*link
	var offers []protocol.PeerID

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	for p, l := range m.links {
		if !want[p] {
			stale = append(stale, l)
			delete(m.links, p)
		}
	}
	for p := range m.early {
		if !want[p] {
			delete(m.early, p)
		}
	}
	for _, p := range members {
		if p == m.self || !p.Valid() {
			continue
		}
		if _, ok := m.links[p]; !ok && m.self < p {
			offers = append(offers, p)
		}
	}
	m.mu.Unlock()

	for _, l := range stale {
		util.LogInfoKV("closing link", "peer", l.peer)
		if err := l.close(); err != nil {
			util.LogDebugKV("link close", "peer", l.peer, "err", err)
		}
	}
	for _, p := range offers {
		if err := m.offer(p); err != nil {
			util.LogWarning("[%s] offer failed: %v", p, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

func (m *Mesh) offer(peer protocol.PeerID) error {
	l, err := m.openLink(peer)
	if err != nil {
		return err
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return m.relay.SendSignal(peer, encodeSignal(signal{Type: sigOffer, SDP: offer.SDP}))
}

func (m *Mesh) answer(peer protocol.PeerID, sdp string) error {
	l, err := m.openLink(peer)
	if err != nil {
		return err
	}

	if err := l.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return m.relay.SendSignal(peer, encodeSignal(signal{Type: sigAnswer, SDP: answer.SDP}))
}

func (m *Mesh) handleSignal(from protocol.PeerID, payload json.RawMessage) {
	var s signal
	if err := json.Unmarshal(payload, &s); err != nil {
		util.LogDebugKV("ignoring malformed signal", "peer", from, "err", err)
		return
	}

	switch s.Type {
	case sigOffer:
		if err := m.answer(from, s.SDP); err != nil {
			util.LogWarning("[%s] answer failed: %v", from, err)
		}

	case sigAnswer:
		l := m.link(from)
		if l == nil {
			util.LogDebugKV("answer without offer", "peer", from)
			return
		}
		if err := l.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: s.SDP}); err != nil {
			util.LogWarning("[%s] %v", from, err)
		}

	case sigCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(s.Candidate), &init); err != nil {
			util.LogDebugKV("ignoring malformed candidate", "peer", from, "err", err)
			return
		}
		m.mu.Lock()
		l := m.links[from]
		if l == nil {
			m.early[from] = append(m.early[from], init)
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		if err := l.addCandidate(init); err != nil {
			util.LogWarning("[%s] AddICECandidate failed: %v", from, err)
		}
	}
}

// openLink creates a fresh link to peer, replacing any existing one, and
// trickles its local candidates through the relay.
func (m *Mesh) openLink(peer protocol.PeerID) (*link, error) {
	l, err := newLink(m.ctx, peer, m.opts.STUNServers, m.inbox)
	if err != nil {
		return nil, err
	}

	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		if err := m.relay.SendSignal(peer, encodeSignal(signal{Type: sigCandidate, Candidate: string(data)})); err != nil {
			util.LogDebugKV("candidate relay failed", "peer", peer, "err", err)
		}
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = l.close()
		return nil, errors.New("mesh closed")
	}
	old := m.links[peer]
	m.links[peer] = l
	l.pending = append(l.pending, m.early[peer]...)
	delete(m.early, peer)
	m.mu.Unlock()

	if old != nil {
		_ = old.close()
	}
	return l, nil
}

func (m *Mesh) link(peer protocol.PeerID) *link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[peer]
}
