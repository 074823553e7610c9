// Package session implements the per-tick dispatch pipeline for lobby peers:
// it pulls envelopes from a Transport, admits only fresh messages from
// current lobby members, fans them out to subscribers and the chat log, and
// stamps outgoing envelopes with sequence and tick.
//
// A Session is not safe for concurrent use. Exactly one goroutine drives
// Tick and issues sends; collaborators deliver their callbacks on that
// goroutine through the Pump.
package session

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/1ureka/lobbynet/internal/metrics"
	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/util"
)

// DefaultBatchSize is the receive capacity used per tick.
const DefaultBatchSize = 64

// Option configures a Session.
type Option func(*Session)

// WithBatchSize sets how many envelopes one Tick pulls at most.
func WithBatchSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.buf = make([]protocol.Received, n)
		}
	}
}

// WithChatLogCapacity sets how many chat lines are retained.
func WithChatLogCapacity(n int) Option {
	return func(s *Session) { s.log = NewChatLog(n) }
}

// WithLocalEcho appends "Me: <text>" when sending lobby chat. Leave it off
// when the side channel echoes the sender's own messages.
func WithLocalEcho() Option {
	return func(s *Session) { s.localEcho = true }
}

// WithResetOnLeave clears the dedup table when the lobby is left.
func WithResetOnLeave() Option {
	return func(s *Session) { s.resetOnLeave = true }
}

// Session is the dispatch core and send path for one local participant.
type Session struct {
	lobby Lobby
	tr    Transport
	chat  Chat

	buf   []protocol.Received
	tick  uint32
	seq   uint16
	dedup *dedupTable
	log   *ChatLog
	subs  packetObservers

	localEcho    bool
	resetOnLeave bool
}

// New wires a session to its collaborators. chat may be nil.
func New(lobby Lobby, tr Transport, chat Chat, opts ...Option) *Session {
	s := &Session{
		lobby: lobby,
		tr:    tr,
		chat:  chat,
		buf:   make([]protocol.Received, DefaultBatchSize),
		dedup: newDedupTable(),
		log:   NewChatLog(DefaultChatLogCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}

	if lobby != nil {
		lobby.OnEntered(func(id protocol.LobbyID) {
			s.addSys("Lobby Entered")
		})
		lobby.OnLeft(func() {
			if s.resetOnLeave {
				s.dedup.reset()
			}
			s.addSys("Lobby Left")
		})
	}
	if chat != nil {
		chat.OnMessage(func(from protocol.PeerID, text string) {
			s.addLine(s.displayName(from) + ": " + text)
		})
	}

	return s
}

// ---------------------------------------------------------------------------
// Receive path
// ---------------------------------------------------------------------------

// Tick advances the local tick and processes one receive batch. A full batch
// leaves the remainder pending in the transport for the next tick.
func (s *Session) Tick() {
	s.tick++

	if s.tr == nil {
		return
	}

	n := s.tr.Receive(s.buf)
	if n == len(s.buf) {
		util.LogDebug("receive batch full (%d), remaining messages wait for the next tick", n)
	}

	for i := 0; i < n; i++ {
		r := s.buf[i]
		s.buf[i] = protocol.Received{}
		s.dispatch(r)
	}
}

func (s *Session) dispatch(r protocol.Received) {
	metrics.EnvelopesReceived.Inc()

	if reason, ok := s.admit(r); !ok {
		metrics.EnvelopesDropped.WithLabelValues(reason).Inc()
		util.LogDebugKV("envelope dropped", "reason", reason, "from", r.From, "kind", r.Envelope.Kind, "seq", r.Envelope.Seq)
		return
	}
	metrics.EnvelopesAccepted.WithLabelValues(r.Envelope.Kind.String()).Inc()

	if r.Envelope.Kind == protocol.KindChat {
		s.addLine(s.displayName(r.From) + ": " + decodeChat(r.Envelope.Payload))
	}

	s.subs.publish(r.From, r.Envelope)
}

// admit applies the filter chain in order and records the sequence of every
// admitted message. The returned reason is set only on rejection.
func (s *Session) admit(r protocol.Received) (string, bool) {
	if s.lobby == nil || !s.lobby.IsInLobby() {
		return metrics.DropNotInLobby, false
	}
	if !s.lobby.IsMember(r.From) {
		return metrics.DropNotMember, false
	}
	if !s.dedup.observe(r.From, r.Envelope.Seq) {
		return metrics.DropDuplicate, false
	}
	return "", true
}

// OnPacket subscribes fn to every admitted envelope, chat included. The
// returned func removes the subscription.
func (s *Session) OnPacket(fn PacketHandler) (unsubscribe func()) {
	return s.subs.add(fn)
}

// ---------------------------------------------------------------------------
// Send path
// ---------------------------------------------------------------------------

// SendPacket stamps the next sequence number and the current tick and hands
// the envelope to the transport. A nil payload is sent as empty. The only
// error is an oversized payload, which is rejected without consuming a
// sequence number.
func (s *Session) SendPacket(to protocol.PeerID, kind protocol.Kind, payload []byte, reliability protocol.Reliability) error {
	if len(payload) > protocol.MaxPayloadSize {
		return fmt.Errorf("send %s to %s: %w: %d bytes", kind, to, protocol.ErrPayloadTooLarge, len(payload))
	}
	if s.tr == nil {
		return nil
	}

	p := make([]byte, len(payload))
	copy(p, payload)

	env := protocol.Envelope{Kind: kind, Seq: s.seq, Tick: s.tick, Payload: p}
	s.seq++

	s.tr.Send(to, env, reliability)
	metrics.EnvelopesSent.WithLabelValues(reliability.String()).Inc()
	return nil
}

// SendLobbyChat posts text on the lobby side channel. Blank text is ignored.
func (s *Session) SendLobbyChat(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if s.chat != nil {
		s.chat.Send(text)
	}
	if s.localEcho {
		s.addLine("Me: " + text)
	}
}

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// ChatLog returns a copy of the retained chat lines, oldest first.
func (s *Session) ChatLog() []string { return s.log.Lines() }

// ChatLogSince returns chat lines appended after mark and the new mark.
func (s *Session) ChatLogSince(mark uint64) ([]string, uint64) {
	return s.log.Since(mark), s.log.Total()
}

// CurrentTick is the number of ticks processed so far.
func (s *Session) CurrentTick() uint32 { return s.tick }

// NextSeq is the sequence number the next SendPacket will use.
func (s *Session) NextSeq() uint16 { return s.seq }

// LastSeq reports the last accepted sequence from peer.
func (s *Session) LastSeq(peer protocol.PeerID) (uint16, bool) {
	return s.dedup.lookup(peer)
}

// KnownPeers is the number of senders in the dedup table.
func (s *Session) KnownPeers() int { return s.dedup.len() }

func (s *Session) displayName(peer protocol.PeerID) string {
	if s.lobby == nil {
		return peer.String()
	}
	return s.lobby.DisplayName(peer)
}

func (s *Session) addSys(text string) { s.addLine("[SYS] " + text) }

func (s *Session) addLine(line string) { s.log.Append(line) }

// decodeChat decodes a chat payload as UTF-8, replacing each maximal
// ill-formed subsequence with U+FFFD.
func decodeChat(payload []byte) string {
	text, err := unicode.UTF8.NewDecoder().Bytes(payload)
	if err != nil {
		return strings.ToValidUTF8(string(payload), "\uFFFD")
	}
	return string(text)
}
