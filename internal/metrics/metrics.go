// Package metrics exposes Prometheus collectors for the vote lifecycle.
//
// Labels are bounded: "definition" is a configured VoteDefinition ID, "outcome"
// and "event" come from the fixed sets below. All collectors are registered on
// the default registry at init and served by the admin API under /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Resolution outcomes.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
	// OutcomeStale marks a vote dropped because its message disappeared.
	OutcomeStale = "stale"
)

var (
	// VotesStarted counts prompt messages successfully posted and persisted.
	VotesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_initiate_started_total",
			Help: "Total number of vote-initiate messages started.",
		},
		[]string{"definition"},
	)

	// VotesResolved counts resolutions by outcome.
	VotesResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_initiate_resolved_total",
			Help: "Total number of vote-initiate resolutions by outcome.",
		},
		[]string{"definition", "outcome"},
	)

	// VotesActive is 1 while a definition has a watched vote in this process.
	VotesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vote_initiate_active",
			Help: "Whether a vote-initiate message is currently being watched.",
		},
		[]string{"definition"},
	)

	// HandlerErrors counts failures caught at handler entry points.
	HandlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_initiate_handler_errors_total",
			Help: "Total number of errors caught by vote-initiate event handlers.",
		},
		[]string{"definition", "event"},
	)
)

func init() {
	prometheus.MustRegister(VotesStarted, VotesResolved, VotesActive, HandlerErrors)
}
