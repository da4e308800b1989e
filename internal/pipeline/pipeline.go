// Package pipeline sequences one batch run: concurrent bounded fetch,
// then single-threaded merge, validation, correlation, and persistence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
	"github.com/gridpulse/demand-weather-etl/internal/observability"
)

// Fetcher acquires raw per-source records for one city and date range.
type Fetcher interface {
	FetchWeather(ctx context.Context, city string, rng domain.DateRange) ([]domain.WeatherObservation, error)
	FetchDemand(ctx context.Context, city string, rng domain.DateRange) ([]domain.DemandRecord, error)
}

// Store persists the run's artifacts.
type Store interface {
	SaveMergedRecords(ctx context.Context, records []domain.MergedRecord) error
	SaveQualityReport(ctx context.Context, report domain.QualityReport) error
}

// Publisher hands the merged table to downstream consumers.
type Publisher interface {
	PublishMerged(ctx context.Context, runID string, records []domain.MergedRecord) error
}

// Config carries the pipeline's stage settings.
type Config struct {
	FetchConcurrency int
	Quality          domain.QualityConfig
	Correlation      domain.CorrelationConfig
}

// FetchOutcome records one (source, city) fetch result for the run summary.
// A failure here never aborts the run; the remaining pairs proceed.
type FetchOutcome struct {
	Source  domain.Source
	City    string
	Records int
	Err     error
}

// RunSummary is the user-visible result of one run: per-city fetch
// outcomes alongside the quality and correlation outputs.
type RunSummary struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcomes     []FetchOutcome
	MergedRows   int
	Report       domain.QualityReport
	Correlations domain.CorrelationSet
}

// Pipeline runs the fetch-merge-validate-correlate batch.
type Pipeline struct {
	fetcher   Fetcher
	store     Store
	publisher Publisher // nil disables publishing
	cities    []string
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates a Pipeline over the given city registry keys. Pass a nil
// publisher when Kafka output is disabled.
func New(fetcher Fetcher, store Store, publisher Publisher, cities []string, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	sorted := make([]string, len(cities))
	copy(sorted, cities)
	sort.Strings(sorted)

	return &Pipeline{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		cities:    sorted,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once the pipeline has completed a run.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return fmt.Errorf("pipeline has not completed a run yet")
	}
	return nil
}

// Run executes one batch over the date range. The fetch stage fans out over
// a bounded worker pool; the barrier before merge guarantees every worker
// has finished, successfully or with a recorded per-city failure, before
// any downstream stage reads the results. Merge, validation, and
// correlation then run single-threaded over the complete dataset.
//
// Cancellation is honored between stages: an aborted run stops before the
// next stage starts. A completed run's artifacts are written so a re-run
// over the same window is idempotent.
func (p *Pipeline) Run(ctx context.Context, rng domain.DateRange) (*RunSummary, error) {
	runID := uuid.NewString()
	start := time.Now().UTC()

	p.logger.Info("run started", "run_id", runID,
		"start", rng.Start.Format("2006-01-02"), "end", rng.End.Format("2006-01-02"),
		"cities", len(p.cities))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	weather, demand, outcomes := p.fetchAll(ctx, rng)

	if err := ctx.Err(); err != nil {
		p.metrics.RunsTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("run %s aborted before merge: %w", runID, err)
	}

	merged := domain.Merge(weather, demand)
	p.metrics.MergedRows.Set(float64(len(merged.Records)))
	p.metrics.UnmatchedRows.WithLabelValues(string(domain.SourceWeather)).Set(float64(merged.UnmatchedWeather))
	p.metrics.UnmatchedRows.WithLabelValues(string(domain.SourceDemand)).Set(float64(merged.UnmatchedDemand))

	if err := ctx.Err(); err != nil {
		p.metrics.RunsTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("run %s aborted before validation: %w", runID, err)
	}

	// The report is always produced, even when some fetches failed and the
	// table only covers the cities that succeeded.
	records, report := domain.Validate(runID, merged, p.cfg.Quality)
	for _, o := range report.Outliers {
		p.metrics.OutlierRows.WithLabelValues(o.Column, o.Reason).Set(float64(o.Count))
	}
	p.metrics.FreshnessAge.Set(float64(report.Freshness.AgeDays))
	if report.Freshness.Status == domain.FreshnessStale {
		p.logger.Warn("merged data is stale",
			"run_id", runID, "age_days", report.Freshness.AgeDays)
	}

	if err := p.store.SaveQualityReport(ctx, report); err != nil {
		p.metrics.RunsTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("persist quality report: %w", err)
	}
	if err := p.store.SaveMergedRecords(ctx, records); err != nil {
		p.metrics.RunsTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("persist merged records: %w", err)
	}

	if p.publisher != nil {
		if err := p.publisher.PublishMerged(ctx, runID, records); err != nil {
			// The SQLite artifact is authoritative; publishing is best effort.
			p.logger.Error("publish merged records failed", "run_id", runID, "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		p.metrics.RunsTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("run %s aborted before correlation: %w", runID, err)
	}

	correlations := domain.Correlate(records, p.cfg.Correlation)

	summary := &RunSummary{
		RunID:        runID,
		StartedAt:    start,
		FinishedAt:   time.Now().UTC(),
		Outcomes:     outcomes,
		MergedRows:   len(records),
		Report:       report,
		Correlations: correlations,
	}
	p.logSummary(summary)

	p.metrics.RunDuration.Observe(summary.FinishedAt.Sub(start).Seconds())
	p.metrics.RunsTotal.WithLabelValues("completed").Inc()
	p.ready.Store(true)

	return summary, nil
}

// fetchAll fans the (source, city) fetches out over a bounded worker pool.
// Workers share nothing but the append-only result collection behind the
// mutex; wg.Wait is the barrier the merge stage waits on.
func (p *Pipeline) fetchAll(ctx context.Context, rng domain.DateRange) ([]domain.WeatherObservation, []domain.DemandRecord, []FetchOutcome) {
	var (
		mu       sync.Mutex
		weather  []domain.WeatherObservation
		demand   []domain.DemandRecord
		outcomes []FetchOutcome
	)

	sem := make(chan struct{}, p.cfg.FetchConcurrency)
	var wg sync.WaitGroup

	for _, city := range p.cities {
		for _, source := range []domain.Source{domain.SourceWeather, domain.SourceDemand} {
			wg.Add(1)
			go func(city string, source domain.Source) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				outcome := FetchOutcome{Source: source, City: city}
				switch source {
				case domain.SourceWeather:
					records, err := p.fetcher.FetchWeather(ctx, city, rng)
					outcome.Records, outcome.Err = len(records), err
					if err == nil {
						mu.Lock()
						weather = append(weather, records...)
						mu.Unlock()
					}
				case domain.SourceDemand:
					records, err := p.fetcher.FetchDemand(ctx, city, rng)
					outcome.Records, outcome.Err = len(records), err
					if err == nil {
						mu.Lock()
						demand = append(demand, records...)
						mu.Unlock()
					}
				}

				if outcome.Err != nil {
					p.logger.Error("fetch failed", "source", source, "city", city, "error", outcome.Err)
				}

				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()
			}(city, source)
		}
	}
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool {
		if outcomes[i].City != outcomes[j].City {
			return outcomes[i].City < outcomes[j].City
		}
		return outcomes[i].Source < outcomes[j].Source
	})
	return weather, demand, outcomes
}

func (p *Pipeline) logSummary(s *RunSummary) {
	for _, o := range s.Outcomes {
		if o.Err != nil {
			p.logger.Warn("source failed for city", "run_id", s.RunID,
				"source", o.Source, "city", o.City, "error", o.Err)
			continue
		}
		p.logger.Info("source fetched for city", "run_id", s.RunID,
			"source", o.Source, "city", o.City, "records", o.Records)
	}

	for _, c := range append([]domain.CorrelationResult{s.Correlations.Global}, s.Correlations.PerCity...) {
		attrs := []any{"run_id", s.RunID, "scope", c.Scope, "n", c.SampleSize, "strength", c.Strength}
		if c.R != nil {
			attrs = append(attrs, "r", *c.R)
		}
		p.logger.Info("correlation computed", attrs...)
	}

	p.logger.Info("run complete", "run_id", s.RunID,
		"merged_rows", s.MergedRows,
		"unmatched_weather", s.Report.UnmatchedWeather,
		"unmatched_demand", s.Report.UnmatchedDemand,
		"freshness", s.Report.Freshness.Status,
		"duration", s.FinishedAt.Sub(s.StartedAt).String())
}
