package session

import (
	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/util"
)

// PacketHandler receives every envelope that passed admission.
type PacketHandler func(from protocol.PeerID, env protocol.Envelope)

type subscription struct {
	id int
	fn PacketHandler
}

// packetObservers is an ordered subscriber list. A panicking subscriber is
// recovered so the remaining ones still run.
type packetObservers struct {
	nextID int
	subs   []subscription
}

func (o *packetObservers) add(fn PacketHandler) func() {
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscription{id: id, fn: fn})
	return func() { o.remove(id) }
}

func (o *packetObservers) remove(id int) {
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return
		}
	}
}

func (o *packetObservers) publish(from protocol.PeerID, env protocol.Envelope) {
	// Snapshot so subscribers may unsubscribe while being notified.
	subs := o.subs
	for _, s := range subs {
		invoke(s, from, env)
	}
}

func invoke(s subscription, from protocol.PeerID, env protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			util.LogError("packet subscriber %d panicked on %s from %s: %v", s.id, env, from, r)
		}
	}()
	s.fn(from, env)
}
