package lobby

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/1ureka/lobbynet/internal/metrics"
	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/util"
)

// Hub tuning.
const (
	DefaultMaxMembers = 8
	outboxSize        = 64
	readLimit         = 64 * 1024
	pongWait          = 60 * time.Second
	pingPeriod        = 25 * time.Second
	writeWait         = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HubOptions tunes a Hub. Zero values select defaults.
type HubOptions struct {
	ChatRate   rate.Limit // lobby chat messages per second per connection
	ChatBurst  int
	MaxMembers int // cap applied when create asks for none or more
}

// Hub seats connected peers into lobbies. All state is guarded by one mutex;
// every connection has its own writer goroutine.
type Hub struct {
	opts HubOptions

	mu        sync.Mutex
	conns     map[protocol.PeerID]*hubConn
	rooms     map[protocol.LobbyID]*room
	nextLobby protocol.LobbyID
}

type room struct {
	id      protocol.LobbyID
	owner   protocol.PeerID
	max     int
	members []protocol.PeerID // join order
}

type hubConn struct {
	ws      *websocket.Conn
	peer    protocol.PeerID
	name    string
	lobby   protocol.LobbyID
	limiter *rate.Limiter

	out       chan message
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	if opts.ChatRate <= 0 {
		opts.ChatRate = 5
	}
	if opts.ChatBurst <= 0 {
		opts.ChatBurst = 10
	}
	if opts.MaxMembers <= 0 {
		opts.MaxMembers = DefaultMaxMembers
	}
	return &Hub{
		opts:  opts,
		conns: make(map[protocol.PeerID]*hubConn),
		rooms: make(map[protocol.LobbyID]*room),
	}
}

// Routes returns a mux serving the websocket endpoint on /ws, Prometheus
// metrics on /metrics and a liveness probe on /healthz.
func (h *Hub) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ServeHTTP upgrades the request and serves one peer until it disconnects.
// The first message must be a hello carrying a valid, unused peer id.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(readLimit)

	var hello message
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	if err := ws.ReadJSON(&hello); err != nil || hello.Type != msgHello || !hello.Peer.Valid() {
		reject(ws, "expected hello with a valid peer id")
		return
	}

	c := &hubConn{
		ws:      ws,
		peer:    hello.Peer,
		name:    cleanName(hello.Name, hello.Peer),
		limiter: rate.NewLimiter(h.opts.ChatRate, h.opts.ChatBurst),
		out:     make(chan message, outboxSize),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if _, taken := h.conns[c.peer]; taken {
		h.mu.Unlock()
		reject(ws, "peer id already connected")
		return
	}
	h.conns[c.peer] = c
	h.mu.Unlock()

	util.LogInfoKV("peer connected", "peer", c.peer, "name", c.name, "remote", r.RemoteAddr)

	go c.writeLoop()
	c.send(message{Type: msgWelcome, Peer: c.peer, Name: c.name})

	h.readLoop(c)
}

func (h *Hub) readLoop(c *hubConn) {
	defer h.disconnect(c)

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg message
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		h.handle(c, msg)
	}
}

func (h *Hub) handle(c *hubConn, msg message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch msg.Type {
	case msgCreate:
		h.leaveLocked(c)
		capacity := msg.Max
		if capacity <= 0 || capacity > h.opts.MaxMembers {
			capacity = h.opts.MaxMembers
		}
		h.nextLobby++
		rm := &room{id: h.nextLobby, owner: c.peer, max: capacity}
		h.rooms[rm.id] = rm
		h.seatLocked(c, rm)

	case msgJoin:
		rm, ok := h.rooms[msg.Lobby]
		switch {
		case !ok:
			c.send(message{Type: msgError, Text: "no such lobby"})
		case c.lobby == rm.id:
			// already seated
		case len(rm.members) >= rm.max:
			c.send(message{Type: msgError, Text: "lobby is full"})
		default:
			h.leaveLocked(c)
			h.seatLocked(c, rm)
		}

	case msgLeave:
		h.leaveLocked(c)

	case msgList:
		c.send(message{Type: msgLobbies, Lobbies: h.listLocked()})

	case msgNick:
		name := strings.TrimSpace(msg.Name)
		if name == "" {
			return
		}
		c.name = name
		if rm, ok := h.rooms[c.lobby]; ok {
			h.broadcastRosterLocked(rm)
		}

	case msgChat:
		rm, ok := h.rooms[c.lobby]
		if !ok || strings.TrimSpace(msg.Text) == "" {
			return
		}
		if !c.limiter.Allow() {
			metrics.HubRateLimited.Inc()
			c.send(message{Type: msgError, Text: "chat rate limited"})
			return
		}
		out := message{Type: msgChat, Lobby: rm.id, Peer: c.peer, Text: msg.Text}
		for _, p := range rm.members {
			h.conns[p].send(out)
		}

	case msgSignal:
		target, ok := h.conns[msg.To]
		if !ok || !c.lobby.Valid() || target.lobby != c.lobby {
			c.send(message{Type: msgError, Text: "signal target is not in your lobby"})
			return
		}
		target.send(message{Type: msgSignal, Lobby: c.lobby, Peer: c.peer, Signal: msg.Signal})

	default:
		c.send(message{Type: msgError, Text: "unknown message type " + string(msg.Type)})
	}
}

// seatLocked puts c into rm, tells c, then tells everyone the new roster.
func (h *Hub) seatLocked(c *hubConn, rm *room) {
	rm.members = append(rm.members, c.peer)
	c.lobby = rm.id
	c.send(message{Type: msgEntered, Lobby: rm.id})
	h.broadcastRosterLocked(rm)
	h.updateGaugesLocked()
}

// leaveLocked removes c from its lobby, if any. Empty lobbies are closed and
// ownership passes to the longest-seated member.
func (h *Hub) leaveLocked(c *hubConn) {
	rm, ok := h.rooms[c.lobby]
	c.lobby = 0
	if !ok {
		return
	}

	for i, p := range rm.members {
		if p == c.peer {
			rm.members = append(rm.members[:i], rm.members[i+1:]...)
			break
		}
	}
	c.send(message{Type: msgLeft, Lobby: rm.id})

	if len(rm.members) == 0 {
		delete(h.rooms, rm.id)
	} else {
		if rm.owner == c.peer {
			rm.owner = rm.members[0]
		}
		h.broadcastRosterLocked(rm)
	}
	h.updateGaugesLocked()
}

func (h *Hub) broadcastRosterLocked(rm *room) {
	members := make([]Member, 0, len(rm.members))
	for _, p := range rm.members {
		members = append(members, Member{Peer: p, Name: h.conns[p].name})
	}
	out := message{Type: msgRoster, Lobby: rm.id, Members: members}
	for _, p := range rm.members {
		h.conns[p].send(out)
	}
}

func (h *Hub) listLocked() []Info {
	list := make([]Info, 0, len(h.rooms))
	for _, rm := range h.rooms {
		info := Info{Lobby: rm.id, Owner: rm.owner, Members: len(rm.members), Max: rm.max}
		if owner, ok := h.conns[rm.owner]; ok {
			info.OwnerName = owner.name
		}
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Lobby < list[j].Lobby })
	return list
}

func (h *Hub) updateGaugesLocked() {
	seated := 0
	for _, rm := range h.rooms {
		seated += len(rm.members)
	}
	metrics.HubLobbies.Set(float64(len(h.rooms)))
	metrics.HubMembers.Set(float64(seated))
}

// disconnect treats a lost connection as leaving the lobby.
func (h *Hub) disconnect(c *hubConn) {
	h.mu.Lock()
	h.leaveLocked(c)
	if h.conns[c.peer] == c {
		delete(h.conns, c.peer)
	}
	h.mu.Unlock()

	c.close()
	util.LogInfoKV("peer disconnected", "peer", c.peer)
}

// ---------------------------------------------------------------------------
// Connection
// ---------------------------------------------------------------------------

// send queues msg for the writer. A peer that cannot keep up is cut off
// rather than allowed to stall the hub.
func (c *hubConn) send(msg message) {
	select {
	case <-c.done:
	case c.out <- msg:
	default:
		util.LogWarning("[%s] outbox full, closing connection", c.peer)
		c.close()
	}
}

func (c *hubConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close unblocks both loops; the read loop then runs disconnect.
func (c *hubConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func reject(ws *websocket.Conn, reason string) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteJSON(message{Type: msgError, Text: reason})
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	ws.Close()
}

func cleanName(name string, peer protocol.PeerID) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Player " + peer.String()
	}
	return name
}
