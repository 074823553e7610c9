package transport

import "github.com/1ureka/lobbynet/internal/protocol"

// Null discards every send and never has anything to receive. It also
// serves as an always-ready pump, so a session can boot without a network.
type Null struct{}

func (Null) Send(protocol.PeerID, protocol.Envelope, protocol.Reliability) {}
func (Null) Receive([]protocol.Received) int                               { return 0 }
func (Null) Close() error                                                  { return nil }

func (Null) IsReady() bool { return true }
func (Null) Tick()         {}
func (Null) Shutdown()     {}
