package transport

import (
	"sync"

	"github.com/1ureka/lobbynet/internal/metrics"
	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/util"
)

// DefaultInboxSize bounds the decoded messages waiting for Receive.
const DefaultInboxSize = 1024

// inbox is a bounded FIFO between network goroutines and the tick
// goroutine. When full, the newest message is dropped.
type inbox struct {
	mu    sync.Mutex
	items []protocol.Received
	limit int
}

func newInbox(limit int) *inbox {
	if limit <= 0 {
		limit = DefaultInboxSize
	}
	return &inbox{limit: limit}
}

func (q *inbox) push(msg protocol.Received) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.limit {
		metrics.TransportDrops.WithLabelValues(metrics.DropInboxFull).Inc()
		util.Stats.AddDropped()
		return false
	}
	q.items = append(q.items, msg)
	return true
}

// drain moves up to len(buf) messages into buf in arrival order.
func (q *inbox) drain(buf []protocol.Received) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := copy(buf, q.items)
	if n == 0 {
		return 0
	}
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]
	return n
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
