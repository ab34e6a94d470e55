// Package metrics holds the Prometheus collectors shared by the feed engine
// and the reference backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_fetch_attempts_total",
		Help: "Read attempts made by the backoff fetcher",
	}, []string{"source", "outcome"})

	DegradedReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_degraded_reads_total",
		Help: "Reads answered from the last known good response after retries ran out",
	}, []string{"source"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	PageFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_page_fetches_total",
		Help: "Next-page fetches started by the pagination controller",
	}, []string{"outcome"})

	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_mutations_total",
		Help: "Engagement mutations by metric and outcome",
	}, []string{"metric", "outcome"})

	BoostsInjected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_boosts_rendered_total",
		Help: "Boosted items placed into rendered feeds",
	})

	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_tasks_executed_total",
		Help: "Background tasks executed by type and outcome",
	}, []string{"type", "outcome"})
)
