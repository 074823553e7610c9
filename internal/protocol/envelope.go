// Package protocol defines the envelope frame exchanged between lobby peers
// and its binary encoding.
package protocol

import (
	"fmt"
	"strconv"
)

// Kind identifies the purpose of an envelope. Values outside the defined set
// are carried through untouched; applications reserve their own ranges.
type Kind uint8

// Defined kinds.
const (
	KindChat         Kind = 1
	KindInputCommand Kind = 10
	KindSnapshot     Kind = 11
	KindRpc          Kind = 12
	KindVoiceControl Kind = 30 // control only, audio never rides the envelope path
)

// KindAppBase is the first kind reserved for application-defined messages.
const KindAppBase Kind = 200

// Known reports whether k is one of the defined kinds.
func (k Kind) Known() bool {
	switch k {
	case KindChat, KindInputCommand, KindSnapshot, KindRpc, KindVoiceControl:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindInputCommand:
		return "input"
	case KindSnapshot:
		return "snapshot"
	case KindRpc:
		return "rpc"
	case KindVoiceControl:
		return "voice-control"
	}
	if k >= KindAppBase {
		return "app(" + strconv.Itoa(int(k)) + ")"
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// Reliability is the delivery hint handed to the transport.
type Reliability uint8

const (
	Reliable Reliability = iota
	Unreliable
)

func (r Reliability) String() string {
	if r == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// PeerID identifies a remote participant. Zero means unset.
type PeerID uint64

// Valid reports whether the id is set.
func (p PeerID) Valid() bool { return p != 0 }

func (p PeerID) String() string { return strconv.FormatUint(uint64(p), 10) }

// LobbyID identifies a lobby. Zero means "not in a lobby".
type LobbyID uint64

// Valid reports whether the id is set.
func (l LobbyID) Valid() bool { return l != 0 }

func (l LobbyID) String() string { return strconv.FormatUint(uint64(l), 10) }

// Envelope is one framed message. Treat it as immutable once built.
type Envelope struct {
	Kind    Kind
	Seq     uint16 // per-sender counter, wraps at 65536
	Tick    uint32 // sender's tick at send time, informational
	Payload []byte
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s seq=%d tick=%d len=%d", e.Kind, e.Seq, e.Tick, len(e.Payload))
}

// Received pairs an envelope with the peer it came from.
type Received struct {
	From     PeerID
	Envelope Envelope
}
