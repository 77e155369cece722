package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeSequential = "sequential"
	modeParallel   = "parallel"
	modeSinglePage = "single_page"
)

var (
	chunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mstr_pagination_chunks_total",
			Help: "Total number of chunk fetches by mode and status",
		},
		[]string{"mode", "status"}, // status: success, error
	)

	rowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mstr_pagination_rows_total",
			Help: "Total number of rows materialized",
		},
	)

	materializeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mstr_pagination_duration_seconds",
			Help:    "Duration of complete materializations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"mode"},
	)
)
