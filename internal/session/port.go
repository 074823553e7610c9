package session

import "github.com/1ureka/lobbynet/internal/protocol"

// Transport moves envelopes between peers. Implementations own reliability;
// the session only forwards the hint.
type Transport interface {
	// Send is best-effort and never reports failure to the caller.
	Send(to protocol.PeerID, env protocol.Envelope, reliability protocol.Reliability)

	// Receive copies up to len(buf) pending messages into buf and returns the
	// count. It must not block; zero means nothing is pending.
	Receive(buf []protocol.Received) int
}

// Lobby answers membership questions about the lobby the local peer sits in.
type Lobby interface {
	IsReady() bool
	IsInLobby() bool
	IsMember(peer protocol.PeerID) bool
	DisplayName(peer protocol.PeerID) string

	// OnEntered and OnLeft register observers. They fire on the goroutine
	// that drives the pump, after the lobby state has changed.
	OnEntered(fn func(protocol.LobbyID))
	OnLeft(fn func())
}

// Pump services the network stack's internal callbacks once per tick.
type Pump interface {
	IsReady() bool
	Tick()
	Shutdown()
}

// Chat is the optional lobby text side channel. Messages arriving on it are
// trusted and bypass envelope admission.
type Chat interface {
	Send(text string)
	OnMessage(fn func(from protocol.PeerID, text string))
}
