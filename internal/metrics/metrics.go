package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the engine
	Registry = prometheus.NewRegistry()

	// Submissions counts reservation submissions by outcome
	// (created, queued, error).
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reservation_submissions_total", Help: "Reservation submissions by outcome."},
		[]string{"outcome"},
	)
	// Refreshes counts ledger refreshes by role and trigger
	// (user, feed, poll, write).
	Refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reservation_refreshes_total", Help: "Ledger refreshes by role and trigger."},
		[]string{"role", "trigger"},
	)
	// FeedEvents counts change-feed events by op and whether the relevance
	// filter let them trigger a refresh.
	FeedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reservation_feed_events_total", Help: "Change-feed events by op and relevance."},
		[]string{"op", "relevant"},
	)
	// Cancels counts cancellation attempts by outcome (ok, denied, error).
	Cancels = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reservation_cancels_total", Help: "Cancellation attempts by outcome."},
		[]string{"outcome"},
	)
)

// RegisterDefault registers the engine collectors on the registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(Submissions)
		Registry.MustRegister(Refreshes)
		Registry.MustRegister(FeedEvents)
		Registry.MustRegister(Cancels)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
