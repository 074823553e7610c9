package session

import (
	"github.com/1ureka/lobbynet/internal/protocol"
)

// fakeTransport queues inbound messages and records outbound ones.
type fakeTransport struct {
	inbound  []protocol.Received
	sent     []sentEnvelope
	receives int
}

type sentEnvelope struct {
	to          protocol.PeerID
	env         protocol.Envelope
	reliability protocol.Reliability
}

func (f *fakeTransport) Send(to protocol.PeerID, env protocol.Envelope, r protocol.Reliability) {
	f.sent = append(f.sent, sentEnvelope{to: to, env: env, reliability: r})
}

func (f *fakeTransport) Receive(buf []protocol.Received) int {
	f.receives++
	n := copy(buf, f.inbound)
	f.inbound = f.inbound[n:]
	return n
}

func (f *fakeTransport) push(from protocol.PeerID, kind protocol.Kind, seq uint16, payload string) {
	f.inbound = append(f.inbound, protocol.Received{
		From:     from,
		Envelope: protocol.Envelope{Kind: kind, Seq: seq, Payload: []byte(payload)},
	})
}

// fakeLobby is a settable membership oracle.
type fakeLobby struct {
	inLobby bool
	members map[protocol.PeerID]string
	entered []func(protocol.LobbyID)
	left    []func()
}

func newFakeLobby(inLobby bool) *fakeLobby {
	return &fakeLobby{inLobby: inLobby, members: make(map[protocol.PeerID]string)}
}

func (l *fakeLobby) IsReady() bool   { return true }
func (l *fakeLobby) IsInLobby() bool { return l.inLobby }

func (l *fakeLobby) IsMember(p protocol.PeerID) bool {
	_, ok := l.members[p]
	return ok
}

func (l *fakeLobby) DisplayName(p protocol.PeerID) string {
	if name, ok := l.members[p]; ok && name != "" {
		return name
	}
	return p.String()
}

func (l *fakeLobby) OnEntered(fn func(protocol.LobbyID)) { l.entered = append(l.entered, fn) }
func (l *fakeLobby) OnLeft(fn func())                    { l.left = append(l.left, fn) }

func (l *fakeLobby) enter(id protocol.LobbyID) {
	l.inLobby = true
	for _, fn := range l.entered {
		fn(id)
	}
}

func (l *fakeLobby) leave() {
	l.inLobby = false
	for _, fn := range l.left {
		fn()
	}
}

// fakeChat records sends and lets tests inject side-channel messages.
type fakeChat struct {
	sent     []string
	handlers []func(protocol.PeerID, string)
}

func (c *fakeChat) Send(text string) { c.sent = append(c.sent, text) }

func (c *fakeChat) OnMessage(fn func(protocol.PeerID, string)) {
	c.handlers = append(c.handlers, fn)
}

func (c *fakeChat) deliver(from protocol.PeerID, text string) {
	for _, fn := range c.handlers {
		fn(from, text)
	}
}

// fakePump counts ticks.
type fakePump struct {
	ready    bool
	ticks    int
	shutdown int
	onTick   func()
}

func (p *fakePump) IsReady() bool { return p.ready }

func (p *fakePump) Tick() {
	p.ticks++
	if p.onTick != nil {
		p.onTick()
	}
}

func (p *fakePump) Shutdown() { p.shutdown++ }
