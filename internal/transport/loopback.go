package transport

import (
	"sync"

	"github.com/1ureka/lobbynet/internal/metrics"
	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/util"
)

// Loopback is an in-memory switchboard connecting any number of endpoints in
// one process. Every frame goes through the wire codec, so receivers never
// share memory with senders.
type Loopback struct {
	mu        sync.Mutex
	endpoints map[protocol.PeerID]*Endpoint
	duplicate bool
	dropEvery int
	routed    int
}

// LoopbackOption configures fault injection on a Loopback.
type LoopbackOption func(*Loopback)

// WithDuplicates delivers every frame twice.
func WithDuplicates() LoopbackOption {
	return func(l *Loopback) { l.duplicate = true }
}

// WithDropEvery silently loses every nth routed frame.
func WithDropEvery(n int) LoopbackOption {
	return func(l *Loopback) { l.dropEvery = n }
}

func NewLoopback(opts ...LoopbackOption) *Loopback {
	l := &Loopback{endpoints: make(map[protocol.PeerID]*Endpoint)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Endpoint attaches peer to the switchboard, replacing any earlier endpoint
// for the same id.
func (l *Loopback) Endpoint(peer protocol.PeerID) *Endpoint {
	ep := &Endpoint{self: peer, board: l, inbox: newInbox(0)}
	l.mu.Lock()
	l.endpoints[peer] = ep
	l.mu.Unlock()
	return ep
}

func (l *Loopback) route(from, to protocol.PeerID, env protocol.Envelope) {
	l.mu.Lock()
	dst := l.endpoints[to]
	l.routed++
	lost := l.dropEvery > 0 && l.routed%l.dropEvery == 0
	copies := 1
	if l.duplicate {
		copies = 2
	}
	l.mu.Unlock()

	if dst == nil {
		metrics.TransportDrops.WithLabelValues(metrics.DropNoLink).Inc()
		util.Stats.AddDropped()
		return
	}
	if lost {
		return
	}

	frame, err := protocol.Encode(env)
	if err != nil {
		metrics.TransportDrops.WithLabelValues(metrics.DropBadFrame).Inc()
		util.Stats.AddDropped()
		return
	}
	util.Stats.AddSent(len(frame))

	for i := 0; i < copies; i++ {
		decoded, err := protocol.Decode(frame)
		if err != nil {
			continue
		}
		util.Stats.AddRecv(len(frame))
		dst.inbox.push(protocol.Received{From: from, Envelope: decoded})
	}
}

// Endpoint is one peer's view of a Loopback. It implements the session
// transport port.
type Endpoint struct {
	self  protocol.PeerID
	board *Loopback
	inbox *inbox
}

// Send routes env to peer to, including to the endpoint itself. Reliability
// is ignored; loss comes only from injected faults.
func (e *Endpoint) Send(to protocol.PeerID, env protocol.Envelope, _ protocol.Reliability) {
	e.board.route(e.self, to, env)
}

func (e *Endpoint) Receive(buf []protocol.Received) int {
	return e.inbox.drain(buf)
}

// Pending reports how many messages wait for Receive.
func (e *Endpoint) Pending() int { return e.inbox.len() }

// Close detaches the endpoint; frames sent to it afterwards are dropped.
func (e *Endpoint) Close() error {
	e.board.mu.Lock()
	if e.board.endpoints[e.self] == e {
		delete(e.board.endpoints, e.self)
	}
	e.board.mu.Unlock()
	return nil
}
