// Package metrics exposes Prometheus collectors for the pipeline. The serve
// subcommand publishes them on /metrics; one-shot runs still update them so
// tests can assert counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peartv_fetch_retries_total",
		Help: "Total fetch attempts beyond the first, across all sources",
	})

	StateSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peartv_state_save_failures_total",
		Help: "Total failures persisting advisory fetch/run state",
	})

	PlaylistChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peartv_playlist_channels",
		Help: "Playlist channels parsed in the last run",
	})

	GuideChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peartv_guide_channels",
		Help: "Distinct guide channels indexed in the last run",
	})

	MatchedChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peartv_matched_channels",
		Help: "Channels matched in the last run, by tier",
	}, []string{"tier"})

	ProgrammesWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peartv_programmes_written",
		Help: "Programme nodes emitted in the last run",
	})

	ProgrammesDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peartv_programmes_dropped",
		Help: "Programme nodes dropped in the last run, by reason",
	}, []string{"reason"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peartv_runs_total",
		Help: "Completed pipeline runs by outcome",
	}, []string{"outcome"})

	RunDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peartv_run_duration_seconds",
		Help: "Wall-clock duration of the last pipeline run",
	})

	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peartv_last_run_timestamp_seconds",
		Help: "Unix time the last successful run finished",
	})
)
