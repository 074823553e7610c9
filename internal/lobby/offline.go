package lobby

import (
	"strings"
	"sync"

	"github.com/1ureka/lobbynet/internal/protocol"
)

// offlineLobby is the lobby id an Offline client reports once seated.
const offlineLobby protocol.LobbyID = 1

// Offline stands in for Client when no hub is reachable. It seats only the
// local peer in a private lobby and echoes lobby chat back to itself. Events
// are delivered from Tick, like Client.
type Offline struct {
	self protocol.PeerID

	mu      sync.Mutex
	name    string
	current protocol.LobbyID
	queue   []func()
	closed  bool

	entered []func(protocol.LobbyID)
	left    []func()
	chat    []func(protocol.PeerID, string)
}

// NewOffline returns an offline lobby for self. Call Create to take a seat.
func NewOffline(self protocol.PeerID, name string) *Offline {
	name = strings.TrimSpace(name)
	if name == "" {
		name = self.String()
	}
	return &Offline{self: self, name: name}
}

func (o *Offline) Self() protocol.PeerID { return o.self }

// Create seats the local peer. Capacity is ignored.
func (o *Offline) Create(int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current.Valid() {
		return nil
	}
	o.current = offlineLobby
	o.queue = append(o.queue, func() {
		for _, fn := range o.entered {
			fn(offlineLobby)
		}
	})
	return nil
}

func (o *Offline) Leave() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current.Valid() {
		return nil
	}
	o.current = 0
	o.queue = append(o.queue, func() {
		for _, fn := range o.left {
			fn()
		}
	})
	return nil
}

func (o *Offline) SetLocalDisplayName(name string) error {
	if name = strings.TrimSpace(name); name != "" {
		o.mu.Lock()
		o.name = name
		o.mu.Unlock()
	}
	return nil
}

func (o *Offline) IsReady() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed
}

func (o *Offline) IsInLobby() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current.Valid()
}

func (o *Offline) CurrentLobby() protocol.LobbyID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *Offline) IsMember(peer protocol.PeerID) bool {
	return peer.Valid() && peer == o.self && o.IsInLobby()
}

func (o *Offline) Members() []protocol.PeerID {
	if !o.IsInLobby() {
		return nil
	}
	return []protocol.PeerID{o.self}
}

func (o *Offline) DisplayName(peer protocol.PeerID) string {
	if peer != o.self {
		return peer.String()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.name
}

// Send echoes text back as if the hub had relayed it.
func (o *Offline) Send(text string) {
	if strings.TrimSpace(text) == "" || !o.IsInLobby() {
		return
	}
	o.mu.Lock()
	o.queue = append(o.queue, func() {
		for _, fn := range o.chat {
			fn(o.self, text)
		}
	})
	o.mu.Unlock()
}

func (o *Offline) OnEntered(fn func(protocol.LobbyID)) { o.entered = append(o.entered, fn) }
func (o *Offline) OnLeft(fn func())                     { o.left = append(o.left, fn) }
func (o *Offline) OnMessage(fn func(protocol.PeerID, string)) {
	o.chat = append(o.chat, fn)
}

func (o *Offline) Tick() {
	o.mu.Lock()
	q := o.queue
	o.queue = nil
	o.mu.Unlock()
	for _, fn := range q {
		fn()
	}
}

func (o *Offline) Shutdown() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}
