// Package metrics holds the Prometheus collectors for the dispatch pipeline,
// the WebRTC transport and the lobby hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Admission drop reasons.
const (
	DropNotInLobby = "not_in_lobby"
	DropNotMember  = "not_member"
	DropDuplicate  = "duplicate"
)

// Transport-level drop reasons.
const (
	DropNoLink     = "no_link"
	DropInboxFull  = "inbox_full"
	DropBadFrame   = "bad_frame"
	DropSendFailed = "send_failed"
)

const namespace = "lobbynet"

var (
	EnvelopesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "envelopes_received_total",
		Help:      "Envelopes pulled from the transport by the dispatch loop.",
	})

	EnvelopesAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "envelopes_accepted_total",
		Help:      "Envelopes that passed admission, by kind.",
	}, []string{"kind"})

	EnvelopesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "envelopes_dropped_total",
		Help:      "Envelopes dropped by admission filtering, by reason.",
	}, []string{"reason"})

	EnvelopesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "envelopes_sent_total",
		Help:      "Envelopes handed to the transport, by reliability hint.",
	}, []string{"reliability"})

	TransportDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_drops_total",
		Help:      "Frames discarded inside the transport, by reason.",
	}, []string{"reason"})

	HubLobbies = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hub_lobbies",
		Help:      "Lobbies currently open on the hub.",
	})

	HubMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hub_members",
		Help:      "Connections currently seated in a lobby.",
	})

	HubRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hub_chat_rate_limited_total",
		Help:      "Lobby chat messages rejected by the per-connection limiter.",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
