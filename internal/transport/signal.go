package transport

import (
	"encoding/json"

	"github.com/1ureka/lobbynet/internal/protocol"
)

// signalType identifies the kind of signaling payload.
type signalType string

const (
	sigOffer     signalType = "offer"
	sigAnswer    signalType = "answer"
	sigCandidate signalType = "candidate"
)

// signal is the JSON payload relayed through the lobby between two peers.
type signal struct {
	Type      signalType `json:"type"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate string     `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

// Relay carries signaling between lobby members and reports roster changes.
// *lobby.Client satisfies it.
type Relay interface {
	Self() protocol.PeerID
	SendSignal(to protocol.PeerID, payload json.RawMessage) error
	OnSignal(fn func(from protocol.PeerID, payload json.RawMessage))
	OnRoster(fn func(members []protocol.PeerID))
}

func encodeSignal(s signal) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
