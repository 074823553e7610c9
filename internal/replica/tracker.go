package replica

import (
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/session"
	"github.com/1ureka/lobbynet/internal/util"
)

// PacketSource is the subscription half of a session.
type PacketSource interface {
	OnPacket(fn session.PacketHandler) (unsubscribe func())
}

// PacketSink is the sending half of a session.
type PacketSink interface {
	SendPacket(to protocol.PeerID, kind protocol.Kind, payload []byte, rel protocol.Reliability) error
}

// Sample is the latest transform seen for one owner.
type Sample struct {
	Transform Transform
	From      protocol.PeerID // peer that relayed it
	Tick      uint32          // sender tick
}

// Tracker keeps the latest transform per owner from incoming packets.
type Tracker struct {
	mu     sync.RWMutex
	latest map[protocol.PeerID]Sample
	stop   func()
}

// NewTracker subscribes to src until Close.
func NewTracker(src PacketSource) *Tracker {
	t := &Tracker{latest: make(map[protocol.PeerID]Sample)}
	t.stop = src.OnPacket(t.observe)
	return t
}

func (t *Tracker) observe(from protocol.PeerID, env protocol.Envelope) {
	if env.Kind != KindTransformSync {
		return
	}
	owner, tf, err := DecodeTransform(env.Payload)
	if err != nil {
		util.LogDebugKV("ignoring transform", "peer", from, "err", err)
		return
	}
	if !owner.Valid() {
		return
	}

	t.mu.Lock()
	t.latest[owner] = Sample{Transform: tf, From: from, Tick: env.Tick}
	t.mu.Unlock()
}

// Latest returns the newest sample for owner.
func (t *Tracker) Latest(owner protocol.PeerID) (Sample, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.latest[owner]
	return s, ok
}

// Owners lists tracked owners in ascending order.
func (t *Tracker) Owners() []protocol.PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	owners := make([]protocol.PeerID, 0, len(t.latest))
	for o := range t.latest {
		owners = append(owners, o)
	}
	slices.Sort(owners)
	return owners
}

// Forget drops the sample for owner, e.g. after the owner left the lobby.
func (t *Tracker) Forget(owner protocol.PeerID) {
	t.mu.Lock()
	delete(t.latest, owner)
	t.mu.Unlock()
}

// Close unsubscribes from the packet source.
func (t *Tracker) Close() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}

// DefaultPublishRate is how often a Publisher sends, per second.
const DefaultPublishRate = 20

// Publisher sends the local owner's transform to a set of peers, at most
// rate times per second. Snapshots are unreliable: a newer one supersedes
// any that was lost.
type Publisher struct {
	sink    PacketSink
	owner   protocol.PeerID
	limiter *rate.Limiter
}

// NewPublisher sends owner's transform through sink. perSecond <= 0 selects
// DefaultPublishRate.
func NewPublisher(sink PacketSink, owner protocol.PeerID, perSecond float64) *Publisher {
	if perSecond <= 0 {
		perSecond = DefaultPublishRate
	}
	return &Publisher{
		sink:    sink,
		owner:   owner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Publish sends t to every target when the rate allows it and reports
// whether it did. now is the caller's clock, normally time.Now().
func (p *Publisher) Publish(now time.Time, t Transform, targets []protocol.PeerID) (bool, error) {
	if !p.limiter.AllowN(now, 1) {
		return false, nil
	}
	payload := EncodeTransform(p.owner, t)
	for _, to := range targets {
		if !to.Valid() {
			continue
		}
		if err := p.sink.SendPacket(to, KindTransformSync, payload, protocol.Unreliable); err != nil {
			return true, err
		}
	}
	return true, nil
}
