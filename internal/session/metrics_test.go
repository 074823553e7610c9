package session

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/1ureka/lobbynet/internal/metrics"
	"github.com/1ureka/lobbynet/internal/protocol"
)

func TestDispatchCountsDropsByReason(t *testing.T) {
	s, tr, lobby, _ := newTestSession()

	dup := testutil.ToFloat64(metrics.EnvelopesDropped.WithLabelValues(metrics.DropDuplicate))
	stranger := testutil.ToFloat64(metrics.EnvelopesDropped.WithLabelValues(metrics.DropNotMember))
	outside := testutil.ToFloat64(metrics.EnvelopesDropped.WithLabelValues(metrics.DropNotInLobby))
	accepted := testutil.ToFloat64(metrics.EnvelopesAccepted.WithLabelValues(protocol.KindRpc.String()))

	tr.push(alice, protocol.KindRpc, 1, "a")
	tr.push(alice, protocol.KindRpc, 1, "a")
	tr.push(carol, protocol.KindRpc, 1, "c")
	s.Tick()

	lobby.inLobby = false
	tr.push(bob, protocol.KindRpc, 9, "b")
	s.Tick()

	if got := testutil.ToFloat64(metrics.EnvelopesDropped.WithLabelValues(metrics.DropDuplicate)) - dup; got != 1 {
		t.Errorf("duplicate drops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.EnvelopesDropped.WithLabelValues(metrics.DropNotMember)) - stranger; got != 1 {
		t.Errorf("not-member drops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.EnvelopesDropped.WithLabelValues(metrics.DropNotInLobby)) - outside; got != 1 {
		t.Errorf("not-in-lobby drops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.EnvelopesAccepted.WithLabelValues(protocol.KindRpc.String())) - accepted; got != 1 {
		t.Errorf("accepted = %v, want 1", got)
	}
}
