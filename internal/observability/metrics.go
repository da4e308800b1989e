package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ETL pipeline.
type Metrics struct {
	FetchRequests *prometheus.CounterVec // labels: source={weather,demand}, outcome={success,error}
	FetchRetries  *prometheus.CounterVec // labels: source
	FetchDuration *prometheus.HistogramVec
	RecordsFetch  *prometheus.CounterVec // labels: source

	// Per-run table gauges, overwritten each run.
	MergedRows    prometheus.Gauge
	UnmatchedRows *prometheus.GaugeVec // labels: source
	OutlierRows   *prometheus.GaugeVec // labels: column, reason
	FreshnessAge  prometheus.Gauge     // age of newest merged row, days

	RunDuration     prometheus.Histogram
	RunsTotal       *prometheus.CounterVec // labels: outcome={completed,aborted}
	PipelineRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.FetchRetries,
		m.FetchDuration,
		m.RecordsFetch,
		m.MergedRows,
		m.UnmatchedRows,
		m.OutlierRows,
		m.FreshnessAge,
		m.RunDuration,
		m.RunsTotal,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demand_weather_etl",
			Name:      "fetch_requests_total",
			Help:      "Source fetch calls by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demand_weather_etl",
			Name:      "fetch_retries_total",
			Help:      "Retry attempts after transient source failures.",
		}, []string{"source"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "demand_weather_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one fetch call including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		RecordsFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demand_weather_etl",
			Name:      "records_fetched_total",
			Help:      "Raw records returned by the sources.",
		}, []string{"source"}),
		MergedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "demand_weather_etl",
			Name:      "merged_rows",
			Help:      "Rows in the merged table after the last run.",
		}),
		UnmatchedRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "demand_weather_etl",
			Name:      "unmatched_rows",
			Help:      "Rows dropped by the inner join, per source, last run.",
		}, []string{"source"}),
		OutlierRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "demand_weather_etl",
			Name:      "outlier_rows",
			Help:      "Rows flagged by the outlier scan, last run.",
		}, []string{"column", "reason"}),
		FreshnessAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "demand_weather_etl",
			Name:      "freshness_age_days",
			Help:      "Age in days of the newest merged row, last run.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "demand_weather_etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-merge-validate-correlate run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demand_weather_etl",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "demand_weather_etl",
			Name:      "pipeline_running",
			Help:      "1 while a run is active, 0 otherwise.",
		}),
	}
}
