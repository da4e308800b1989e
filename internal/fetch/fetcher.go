// Package fetch retrieves raw per-source records for one city and date
// range, with bounded retry, backoff, and an overall timeout ceiling per
// call. Fatal failures (rejected credentials, malformed schemas, cities
// missing from the registry) are never retried.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridpulse/demand-weather-etl/internal/config"
	"github.com/gridpulse/demand-weather-etl/internal/domain"
	"github.com/gridpulse/demand-weather-etl/internal/observability"
)

// WeatherSource fetches daily weather records for one station. The raw
// response payload is returned alongside the parsed records for the audit
// store.
type WeatherSource interface {
	FetchDaily(ctx context.Context, stationID string, rng domain.DateRange) ([]domain.WeatherObservation, []byte, error)
}

// DemandSource fetches daily electricity-demand records for one region.
type DemandSource interface {
	FetchDaily(ctx context.Context, regionID string, rng domain.DateRange) ([]domain.DemandRecord, []byte, error)
}

// RawStore persists the raw per-call payload keyed by (source, city,
// date range) for reproducibility and audit.
type RawStore interface {
	Save(source domain.Source, city string, rng domain.DateRange, payload []byte) error
}

// Params bundles the Fetcher's collaborators.
type Params struct {
	Weather  WeatherSource
	Demand   DemandSource
	Raws     RawStore
	Registry map[string]config.City
	Policy   Policy
	Timeout  time.Duration // overall ceiling for one fetch call including retries
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Fetcher resolves a city against the registry and runs one source call
// under the retry policy.
type Fetcher struct {
	weather  WeatherSource
	demand   DemandSource
	raws     RawStore
	registry map[string]config.City
	policy   Policy
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Fetcher.
func New(p Params) *Fetcher {
	return &Fetcher{
		weather:  p.Weather,
		demand:   p.Demand,
		raws:     p.Raws,
		registry: p.Registry,
		policy:   p.Policy,
		timeout:  p.Timeout,
		logger:   p.Logger,
		metrics:  p.Metrics,
	}
}

// FetchWeather retrieves the weather observations for one city. City names
// are standardized before the registry lookup; an unknown city is a
// configuration error and is not retried.
func (f *Fetcher) FetchWeather(ctx context.Context, city string, rng domain.DateRange) ([]domain.WeatherObservation, error) {
	city = domain.StandardizeCity(city)
	entry, ok := f.registry[city]
	if !ok {
		return nil, fmt.Errorf("%q: %w", city, domain.ErrUnknownCity)
	}

	records, err := fetchSource(ctx, f, domain.SourceWeather, city, rng,
		func(ctx context.Context) ([]domain.WeatherObservation, []byte, error) {
			return f.weather.FetchDaily(ctx, entry.StationID, rng)
		})
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].City = city
	}
	return records, nil
}

// FetchDemand retrieves the demand records for one city.
func (f *Fetcher) FetchDemand(ctx context.Context, city string, rng domain.DateRange) ([]domain.DemandRecord, error) {
	city = domain.StandardizeCity(city)
	entry, ok := f.registry[city]
	if !ok {
		return nil, fmt.Errorf("%q: %w", city, domain.ErrUnknownCity)
	}

	records, err := fetchSource(ctx, f, domain.SourceDemand, city, rng,
		func(ctx context.Context) ([]domain.DemandRecord, []byte, error) {
			return f.demand.FetchDaily(ctx, entry.RegionID, rng)
		})
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].City = city
	}
	return records, nil
}

type sourceResult[T any] struct {
	records []T
	payload []byte
}

// fetchSource runs one source call under the retry policy and the timeout
// ceiling, classifies the failure, and persists the raw payload on success.
func fetchSource[T any](ctx context.Context, f *Fetcher, source domain.Source, city string, rng domain.DateRange, call func(context.Context) ([]T, []byte, error)) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	result, attempts, err := Do(ctx, f.policy,
		func(ctx context.Context) (sourceResult[T], error) {
			records, payload, err := call(ctx)
			if err != nil {
				return sourceResult[T]{}, err
			}
			return sourceResult[T]{records: records, payload: payload}, nil
		},
		func(attempt int, err error) {
			f.metrics.FetchRetries.WithLabelValues(string(source)).Inc()
			f.logger.Warn("transient source failure, backing off",
				"source", source, "city", city, "attempt", attempt, "error", err)
		})
	f.metrics.FetchDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())

	if err != nil {
		f.metrics.FetchRequests.WithLabelValues(string(source), "error").Inc()

		// Credential and schema failures carry their own types through
		// unchanged; everything else becomes a FetchError for this pair.
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		var schemaErr *domain.SchemaError
		if errors.As(err, &schemaErr) {
			// Source clients build the error from wire data alone; the
			// city is only known here.
			if schemaErr.City == "" {
				schemaErr.City = city
			}
			return nil, err
		}
		return nil, &domain.FetchError{Source: source, City: city, Attempts: attempts, Err: err}
	}

	f.metrics.FetchRequests.WithLabelValues(string(source), "success").Inc()
	f.metrics.RecordsFetch.WithLabelValues(string(source)).Add(float64(len(result.records)))

	if err := f.raws.Save(source, city, rng, result.payload); err != nil {
		// Audit persistence must not fail the fetch itself.
		f.logger.Warn("raw payload save failed", "source", source, "city", city, "error", err)
	}

	return result.records, nil
}
