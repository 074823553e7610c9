package transport

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/lobbynet/internal/metrics"
	"github.com/1ureka/lobbynet/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 256        // outgoing frame channel capacity
)

// sender is a goroutine-based frame writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control.
type sender struct {
	peer        string
	inbox       chan []byte
	drainSignal chan struct{}
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled.
func newSender(ctx context.Context, peer string, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := &sender{
		peer:        peer,
		inbox:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal)

	return s
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness.
func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) {
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case frame := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			if err := dc.Send(frame); err != nil {
				util.LogWarning("[%s] %s send failed: %v", s.peer, dc.Label(), err)
				metrics.TransportDrops.WithLabelValues(metrics.DropSendFailed).Inc()
				util.Stats.AddDropped()
				continue
			}

			util.Stats.AddSent(len(frame))
		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a frame without blocking the caller. It reports false when
// the queue is full or ctx is already cancelled.
func (s *sender) send(ctx context.Context, frame []byte) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.inbox <- frame:
		return true
	default:
		return false
	}
}
