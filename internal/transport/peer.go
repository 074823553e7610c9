package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/lobbynet/internal/protocol"
)

// DefaultSTUNServers are used when no STUN servers are configured. No TURN:
// links are direct P2P only.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// channelIndex maps a reliability hint to its negotiated channel id. Unknown
// hints fall back to the reliable channel.
func channelIndex(rel protocol.Reliability) int {
	if rel == protocol.Unreliable {
		return 1
	}
	return 0
}

// newPeerConnection creates a PeerConnection using the given STUN servers.
func newPeerConnection(stun []string) (*webrtc.PeerConnection, error) {
	if len(stun) == 0 {
		stun = DefaultSTUNServers
	}
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stun},
		},
	}
	return webrtc.NewPeerConnection(config)
}

// newDataChannel creates one of the two pre-negotiated channels. Both sides
// create them independently, so neither relies on OnDataChannel.
//
// Reliable is ordered with full retransmission. Unreliable is unordered with
// no retransmits, so a lost frame never holds back newer ones.
func newDataChannel(pc *webrtc.PeerConnection, rel protocol.Reliability) (*webrtc.DataChannel, error) {
	negotiated := true
	id := uint16(channelIndex(rel))
	init := &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	}

	if rel == protocol.Unreliable {
		ordered := false
		retransmits := uint16(0)
		init.Ordered = &ordered
		init.MaxRetransmits = &retransmits
	}

	return pc.CreateDataChannel(rel.String(), init)
}
