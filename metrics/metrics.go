// Package metrics provides Prometheus metrics for the registry, the peers and the analytics
// tools. Everything registers with the default registry and is served on /metrics by the admin
// API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opinionnet"

// ─── Registry ───────────────────────────────────────────────────────────────

// Registrations counts registration requests by result (ok, invalid).
var Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "registrations_total",
	Help:      "Registration requests handled by the registry.",
}, []string{"result"})

// Lookups counts lookups by result (found, not_found, error).
var Lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "lookups_total",
	Help:      "User lookups handled by the registry.",
}, []string{"result"})

// TopicNotifications counts per-recipient topic notifications by result (delivered, failed).
var TopicNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "topic_notifications_total",
	Help:      "Topic notifications sent to registered users.",
}, []string{"result"})

// ─── Peers ──────────────────────────────────────────────────────────────────

// MessagesSent counts outgoing opinion messages by result (sent, not_found, unreachable).
var MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "messages_sent_total",
	Help:      "Opinion messages sent to peers.",
}, []string{"result"})

// MessagesReceived counts inbound opinion messages by result (accepted, rejected, malformed, error).
var MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "messages_received_total",
	Help:      "Opinion messages received from peers.",
}, []string{"result"})

// Opinion tracks the current opinion of every local user.
var Opinion = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "opinion",
	Help:      "Current opinion held by a user.",
}, []string{"user"})

// ─── Analytics ──────────────────────────────────────────────────────────────

// Polarization tracks the last polarization index measured for a topic.
var Polarization = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "polarization_index",
	Help:      "Latest polarization index measured on a topic.",
}, []string{"topic"})

// ConsensusAttempts counts pair consensus attempts by outcome (reached, not_reached).
var ConsensusAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "consensus_attempts_total",
	Help:      "Pair consensus attempts.",
}, []string{"outcome"})
