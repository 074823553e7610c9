package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/lobbynet/internal/metrics"
	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/util"
)

// link is the PeerConnection to one remote peer with its two negotiated
// DataChannels. The link lives until its context is cancelled, either by the
// mesh or by the PeerConnection failing.
type link struct {
	peer     protocol.PeerID
	pc       *webrtc.PeerConnection
	channels [2]*webrtc.DataChannel
	senders  [2]*sender

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit // remote candidates seen before the remote description
}

func newLink(ctx context.Context, peer protocol.PeerID, stun []string, in *inbox) (*link, error) {
	pc, err := newPeerConnection(stun)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &link{peer: peer, pc: pc, ctx: lctx, cancel: cancel}

	for _, rel := range []protocol.Reliability{protocol.Reliable, protocol.Unreliable} {
		dc, err := newDataChannel(pc, rel)
		if err != nil {
			cancel()
			pc.Close()
			return nil, fmt.Errorf("create %s channel: %w", rel, err)
		}

		open := make(chan struct{})
		var openOnce sync.Once
		dc.OnOpen(func() {
			openOnce.Do(func() { close(open) })
			util.LogInfoKV("data channel open", "peer", peer, "channel", dc.Label())
		})
		dc.OnClose(func() {
			util.LogDebugKV("data channel closed", "peer", peer, "channel", dc.Label())
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			l.deliver(msg.Data, in)
		})

		i := channelIndex(rel)
		l.channels[i] = dc
		l.senders[i] = newSender(lctx, peer.String(), dc, open)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebugKV("peer connection state", "peer", peer, "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})

	return l, nil
}

// deliver decodes an inbound frame into the inbox. Bad frames never reach it.
func (l *link) deliver(data []byte, in *inbox) {
	env, err := protocol.Decode(data)
	if err != nil {
		util.LogDebugKV("dropping bad frame", "peer", l.peer, "err", err)
		metrics.TransportDrops.WithLabelValues(metrics.DropBadFrame).Inc()
		util.Stats.AddDropped()
		return
	}
	util.Stats.AddRecv(len(data))
	in.push(protocol.Received{From: l.peer, Envelope: env})
}

func (l *link) isOpen(rel protocol.Reliability) bool {
	if l.ctx.Err() != nil {
		return false
	}
	return l.channels[channelIndex(rel)].ReadyState() == webrtc.DataChannelStateOpen
}

func (l *link) send(rel protocol.Reliability, frame []byte) bool {
	return l.senders[channelIndex(rel)].send(l.ctx, frame)
}

// setRemote applies the remote description and flushes queued candidates.
func (l *link) setRemote(sd webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote %s: %w", sd.Type, err)
	}

	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			util.LogWarning("[%s] AddICECandidate failed: %v", l.peer, err)
		}
	}
	return nil
}

func (l *link) addCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(c)
}

func (l *link) close() error {
	l.cancel()
	return errors.Join(l.channels[0].Close(), l.channels[1].Close(), l.pc.Close())
}
