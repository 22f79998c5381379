// Package metrics declares the Prometheus instruments exported by serve.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_runs_completed_total",
		Help: "Total number of reconciliation runs that produced payout lines.",
	})

	RunsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_runs_failed_total",
		Help: "Total number of reconciliation runs aborted, labelled by stage.",
	}, []string{"stage"})

	RecordsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_records_processed_total",
		Help: "Total number of operational records fed into runs.",
	})

	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_duplicates_dropped_total",
		Help: "Total number of exact duplicate records collapsed.",
	})

	PayoutLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_lines_total",
		Help: "Total number of payout lines produced, labelled by status and decision source.",
	}, []string{"status", "source"})

	ReviewItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_review_items_total",
		Help: "Total number of manual-review items surfaced, labelled by reason.",
	}, []string{"reason"})

	OverridesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_overrides_rejected_total",
		Help: "Total number of manual overrides refused by validation.",
	})

	LedgerLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_ledger_load_duration_ms",
		Help:    "Ledger read latency in milliseconds, labelled by source.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"source"})

	LedgerEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payout_ledger_entries",
		Help: "Entries indexed from the most recent load, labelled by source.",
	}, []string{"source"})
)
