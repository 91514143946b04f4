// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeResolved   = "resolved"
	outcomeUnresolved = "unresolved"
	outcomeMalformed  = "malformed"
	outcomeMismatch   = "mismatch"
)

type metrics struct {
	entries       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	finalized     prometheus.Counter
}

// newMetrics registers with reg; a nil reg yields working, unregistered
// collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		entries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_entries_total",
			Help: "Vote log entries processed by the tally, by outcome",
		}, []string{"outcome"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_fetch_duration_seconds",
			Help:    "Time to fetch one ballot document",
			Buckets: prometheus.DefBuckets,
		}),
		finalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "tally_finalized_total",
			Help: "Sessions finalized on the ledger by this process",
		}),
	}
}
