package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// syncRuns counts finished sync runs by mode and outcome.
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_sync_runs_total",
		Help: "Total number of sync runs by mode and status",
	}, []string{"mode", "status"})

	// syncDuration tracks the wall time of sync runs.
	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sales_sync_duration_seconds",
		Help:    "Duration of sync runs by mode",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"mode"})

	// pagesFetched counts upstream sales pages consumed by syncs.
	pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_sync_pages_total",
		Help: "Total number of upstream sales pages fetched by syncs",
	})

	// recordsSkipped counts raw sales that produced no row.
	recordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_sync_records_skipped_total",
		Help: "Total number of upstream records skipped by reason",
	}, []string{"reason"}) // reason: undecodable, empty, no_id

	// rowsUpserted counts rows written per table.
	rowsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_upsert_rows_total",
		Help: "Total number of rows upserted by table",
	}, []string{"table"})

	// batchDuration tracks the time of one sub-batch upsert.
	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sales_upsert_batch_duration_seconds",
		Help:    "Duration of a single upsert sub-batch by table",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"table"})

	upsertErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_upsert_errors_total",
		Help: "Total number of failed upsert sub-batches by table",
	}, []string{"table"})

	// lastSuccess is the unix time of the last completed sync.
	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sales_sync_last_success_timestamp_seconds",
		Help: "Unix time of the last successful sync run",
	})
)
