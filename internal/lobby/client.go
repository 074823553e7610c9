package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/util"
)

var (
	ErrNotReady   = errors.New("lobby client not connected")
	ErrNotInLobby = errors.New("not in a lobby")
	ErrRejected   = errors.New("hub rejected hello")
)

// Client is one peer's connection to the hub. Membership queries are safe
// from any goroutine. Entered/left/chat observers are queued by the reader
// and fire only from Tick, so they run on the goroutine driving the session.
// Signal and roster observers fire on the reader goroutine.
type Client struct {
	ws   *websocket.Conn
	self protocol.PeerID

	wmu sync.Mutex // gorilla allows a single concurrent writer

	mu      sync.RWMutex
	ready   bool
	name    string
	current protocol.LobbyID
	members []Member

	qmu   sync.Mutex
	queue []func()

	hmu      sync.RWMutex
	entered  []func(protocol.LobbyID)
	left     []func()
	chat     []func(protocol.PeerID, string)
	roster   []func([]protocol.PeerID)
	onSignal func(from protocol.PeerID, payload json.RawMessage)

	listCh    chan []Info
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the hub at url (e.g. ws://host:port/ws) and introduces
// the local peer. It returns once the hub has acknowledged the hello.
func Dial(ctx context.Context, url string, self protocol.PeerID, name string) (*Client, error) {
	if !self.Valid() {
		return nil, fmt.Errorf("dial %s: invalid peer id", url)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lobby hub: %w", err)
	}

	c := &Client{
		ws:     ws,
		self:   self,
		name:   strings.TrimSpace(name),
		listCh: make(chan []Info, 1),
		done:   make(chan struct{}),
	}

	if err := c.write(message{Type: msgHello, Peer: self, Name: c.name}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	var welcome message
	if err := ws.ReadJSON(&welcome); err != nil {
		ws.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})
	if welcome.Type != msgWelcome {
		ws.Close()
		return nil, fmt.Errorf("%w: %s", ErrRejected, welcome.Text)
	}

	c.mu.Lock()
	c.ready = true
	c.name = welcome.Name
	c.mu.Unlock()

	go c.readLoop()
	return c, nil
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

func (c *Client) readLoop() {
	defer c.lost()

	for {
		var msg message
		if err := c.ws.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				util.LogWarning("lobby connection lost: %v", err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg message) {
	switch msg.Type {
	case msgEntered:
		c.mu.Lock()
		c.current = msg.Lobby
		c.members = nil
		c.mu.Unlock()
		c.enqueue(func() { c.fireEntered(msg.Lobby) })

	case msgLeft:
		c.mu.Lock()
		was := c.current
		if was == msg.Lobby {
			c.current = 0
			c.members = nil
		}
		c.mu.Unlock()
		if was == msg.Lobby {
			c.fireRoster(nil)
			c.enqueue(c.fireLeft)
		}

	case msgRoster:
		c.mu.Lock()
		if msg.Lobby != c.current {
			c.mu.Unlock()
			return
		}
		c.members = msg.Members
		c.mu.Unlock()
		c.fireRoster(peersOf(msg.Members))

	case msgChat:
		if msg.Lobby != c.CurrentLobby() {
			return
		}
		c.enqueue(func() { c.fireChat(msg.Peer, msg.Text) })

	case msgSignal:
		c.hmu.RLock()
		fn := c.onSignal
		c.hmu.RUnlock()
		if fn != nil {
			fn(msg.Peer, msg.Signal)
		}

	case msgLobbies:
		select {
		case c.listCh <- msg.Lobbies:
		default:
		}

	case msgError:
		util.LogWarning("lobby hub: %s", msg.Text)
	}
}

// lost runs once the reader exits: the client is no longer ready and, if it
// was seated, observers learn that the lobby is gone.
func (c *Client) lost() {
	c.mu.Lock()
	was := c.current
	c.ready = false
	c.current = 0
	c.members = nil
	c.mu.Unlock()

	if was.Valid() {
		c.fireRoster(nil)
		c.enqueue(c.fireLeft)
	}
	c.close()
}

// ---------------------------------------------------------------------------
// Pump
// ---------------------------------------------------------------------------

// IsReady reports whether the hub connection is up.
func (c *Client) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Tick delivers queued lobby events on the caller's goroutine.
func (c *Client) Tick() {
	c.qmu.Lock()
	q := c.queue
	c.queue = nil
	c.qmu.Unlock()

	for _, fn := range q {
		fn()
	}
}

// Shutdown closes the hub connection. Safe to call more than once.
func (c *Client) Shutdown() {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()

	c.wmu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	c.wmu.Unlock()
	c.close()
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *Client) enqueue(fn func()) {
	c.qmu.Lock()
	c.queue = append(c.queue, fn)
	c.qmu.Unlock()
}

// ---------------------------------------------------------------------------
// Membership
// ---------------------------------------------------------------------------

// Self is the local peer id.
func (c *Client) Self() protocol.PeerID { return c.self }

// IsInLobby reports whether the local peer is seated.
func (c *Client) IsInLobby() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Valid()
}

// CurrentLobby returns the seated lobby, zero if none.
func (c *Client) CurrentLobby() protocol.LobbyID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// IsMember reports whether peer is in the current lobby roster.
func (c *Client) IsMember(peer protocol.PeerID) bool {
	if !peer.Valid() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready || !c.current.Valid() {
		return false
	}
	for _, m := range c.members {
		if m.Peer == peer {
			return true
		}
	}
	return false
}

// Members returns the current roster in seating order.
func (c *Client) Members() []protocol.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return peersOf(c.members)
}

// DisplayName returns the member's nick, falling back to the numeric id.
func (c *Client) DisplayName(peer protocol.PeerID) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.members {
		if m.Peer == peer && m.Name != "" {
			return m.Name
		}
	}
	if peer == c.self && c.name != "" {
		return c.name
	}
	return peer.String()
}

// ---------------------------------------------------------------------------
// Lobby actions
// ---------------------------------------------------------------------------

// Create opens a new lobby with room for maxMembers and seats the local peer.
func (c *Client) Create(maxMembers int) error {
	return c.request(message{Type: msgCreate, Max: maxMembers})
}

// Join seats the local peer in an existing lobby.
func (c *Client) Join(id protocol.LobbyID) error {
	if !id.Valid() {
		return fmt.Errorf("join: invalid lobby id")
	}
	return c.request(message{Type: msgJoin, Lobby: id})
}

// Leave gives up the current seat. It is a no-op outside a lobby.
func (c *Client) Leave() error {
	if !c.IsInLobby() {
		return nil
	}
	return c.request(message{Type: msgLeave})
}

// SetLocalDisplayName changes the local nick. Blank names are ignored.
func (c *Client) SetLocalDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	return c.request(message{Type: msgNick, Name: name})
}

// RequestLobbies asks the hub for the open lobbies.
func (c *Client) RequestLobbies(ctx context.Context) ([]Info, error) {
	// Drop a stale reply from an earlier abandoned request.
	select {
	case <-c.listCh:
	default:
	}

	if err := c.request(message{Type: msgList}); err != nil {
		return nil, err
	}
	select {
	case list := <-c.listCh:
		return list, nil
	case <-c.done:
		return nil, ErrNotReady
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Chat side channel
// ---------------------------------------------------------------------------

// Send posts lobby chat. It is ignored when blank or outside a lobby.
func (c *Client) Send(text string) {
	if strings.TrimSpace(text) == "" || !c.IsReady() || !c.IsInLobby() {
		return
	}
	if err := c.write(message{Type: msgChat, Text: text}); err != nil {
		util.LogWarning("lobby chat send failed: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Signaling relay
// ---------------------------------------------------------------------------

// SendSignal relays an opaque signaling payload to another lobby member.
func (c *Client) SendSignal(to protocol.PeerID, payload json.RawMessage) error {
	if !c.IsInLobby() {
		return ErrNotInLobby
	}
	return c.request(message{Type: msgSignal, To: to, Signal: payload})
}

// ---------------------------------------------------------------------------
// Observers
// ---------------------------------------------------------------------------

func (c *Client) OnEntered(fn func(protocol.LobbyID)) {
	c.hmu.Lock()
	c.entered = append(c.entered, fn)
	c.hmu.Unlock()
}

func (c *Client) OnLeft(fn func()) {
	c.hmu.Lock()
	c.left = append(c.left, fn)
	c.hmu.Unlock()
}

// OnMessage registers a lobby chat observer.
func (c *Client) OnMessage(fn func(from protocol.PeerID, text string)) {
	c.hmu.Lock()
	c.chat = append(c.chat, fn)
	c.hmu.Unlock()
}

// OnRoster registers an observer for roster changes. It runs on the reader
// goroutine with the new member list (nil after leaving).
func (c *Client) OnRoster(fn func(members []protocol.PeerID)) {
	c.hmu.Lock()
	c.roster = append(c.roster, fn)
	c.hmu.Unlock()
}

// OnSignal sets the handler for relayed signaling payloads.
func (c *Client) OnSignal(fn func(from protocol.PeerID, payload json.RawMessage)) {
	c.hmu.Lock()
	c.onSignal = fn
	c.hmu.Unlock()
}

func (c *Client) fireEntered(id protocol.LobbyID) {
	c.hmu.RLock()
	fns := c.entered
	c.hmu.RUnlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (c *Client) fireLeft() {
	c.hmu.RLock()
	fns := c.left
	c.hmu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Client) fireChat(from protocol.PeerID, text string) {
	c.hmu.RLock()
	fns := c.chat
	c.hmu.RUnlock()
	for _, fn := range fns {
		fn(from, text)
	}
}

func (c *Client) fireRoster(members []protocol.PeerID) {
	c.hmu.RLock()
	fns := c.roster
	c.hmu.RUnlock()
	for _, fn := range fns {
		fn(members)
	}
}

// ---------------------------------------------------------------------------
// Wire
// ---------------------------------------------------------------------------

func (c *Client) request(msg message) error {
	if !c.IsReady() {
		return ErrNotReady
	}
	return c.write(msg)
}

func (c *Client) write(msg message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func peersOf(members []Member) []protocol.PeerID {
	if members == nil {
		return nil
	}
	out := make([]protocol.PeerID, len(members))
	for i, m := range members {
		out[i] = m.Peer
	}
	return out
}
