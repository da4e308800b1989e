package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpulse/demand-weather-etl/internal/config"
	"github.com/gridpulse/demand-weather-etl/internal/domain"
	"github.com/gridpulse/demand-weather-etl/internal/observability"
)

type stubWeather struct {
	calls   int
	records []domain.WeatherObservation
	payload []byte
	errs    []error // consumed per call; nil entries mean success
}

func (s *stubWeather) FetchDaily(_ context.Context, _ string, _ domain.DateRange) ([]domain.WeatherObservation, []byte, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, nil, err
		}
	}
	return s.records, s.payload, nil
}

type stubDemand struct {
	calls   int
	records []domain.DemandRecord
	payload []byte
	err     error
}

func (s *stubDemand) FetchDaily(_ context.Context, _ string, _ domain.DateRange) ([]domain.DemandRecord, []byte, error) {
	s.calls++
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.records, s.payload, nil
}

type stubRawStore struct {
	saves []savedPayload
	err   error
}

type savedPayload struct {
	source  domain.Source
	city    string
	payload []byte
}

func (s *stubRawStore) Save(source domain.Source, city string, _ domain.DateRange, payload []byte) error {
	s.saves = append(s.saves, savedPayload{source: source, city: city, payload: payload})
	return s.err
}

func testRange() domain.DateRange {
	return domain.DateRange{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
}

func newTestFetcher(weather WeatherSource, demand DemandSource, raws RawStore) *Fetcher {
	return New(Params{
		Weather: weather,
		Demand:  demand,
		Raws:    raws,
		Registry: map[string]config.City{
			"Chicago": {Name: "Chicago", StationID: "GHCND:USW00094846", RegionID: "PJM"},
		},
		Policy:  Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Timeout: time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: observability.NewMetricsForTesting(),
	})
}

func TestFetchWeatherSuccess(t *testing.T) {
	weather := &stubWeather{
		records: []domain.WeatherObservation{
			{Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Temperature: fptr(72)},
		},
		payload: []byte(`{"results":[]}`),
	}
	raws := &stubRawStore{}
	f := newTestFetcher(weather, &stubDemand{}, raws)

	records, err := f.FetchWeather(context.Background(), " chicago ", testRange())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Chicago", records[0].City)

	require.Len(t, raws.saves, 1)
	assert.Equal(t, domain.SourceWeather, raws.saves[0].source)
	assert.Equal(t, "Chicago", raws.saves[0].city)
	assert.Equal(t, weather.payload, raws.saves[0].payload)
}

func TestFetchWeatherRetriesTransientFailures(t *testing.T) {
	weather := &stubWeather{
		records: []domain.WeatherObservation{{Temperature: fptr(72)}},
		errs:    []error{fmt.Errorf("%w: status 503", ErrServerError), nil},
	}
	f := newTestFetcher(weather, &stubDemand{}, &stubRawStore{})

	records, err := f.FetchWeather(context.Background(), "Chicago", testRange())

	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, weather.calls)
}

func TestFetchWeatherExhaustedRetriesReportAttempts(t *testing.T) {
	weather := &stubWeather{errs: []error{
		fmt.Errorf("%w: status 429", ErrRateLimited),
		fmt.Errorf("%w: status 429", ErrRateLimited),
		fmt.Errorf("%w: status 429", ErrRateLimited),
	}}
	f := newTestFetcher(weather, &stubDemand{}, &stubRawStore{})

	_, err := f.FetchWeather(context.Background(), "Chicago", testRange())

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.SourceWeather, fetchErr.Source)
	assert.Equal(t, "Chicago", fetchErr.City)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestFetchWeatherLowercaseConfiguredCity(t *testing.T) {
	weather := &stubWeather{records: []domain.WeatherObservation{{Temperature: fptr(58)}}}
	cfg := &config.Config{Cities: []config.City{
		{Name: "new york", StationID: "GHCND:USW00094728", RegionID: "NYIS"},
	}}

	f := New(Params{
		Weather:  weather,
		Demand:   &stubDemand{},
		Raws:     &stubRawStore{},
		Registry: cfg.Registry(),
		Policy:   Policy{MaxAttempts: 1},
		Timeout:  time.Second,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  observability.NewMetricsForTesting(),
	})

	records, err := f.FetchWeather(context.Background(), "new york", testRange())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "New York", records[0].City)
	assert.Equal(t, 1, weather.calls)
}

func TestFetchWeatherUnknownCity(t *testing.T) {
	weather := &stubWeather{}
	f := newTestFetcher(weather, &stubDemand{}, &stubRawStore{})

	_, err := f.FetchWeather(context.Background(), "Atlantis", testRange())

	assert.ErrorIs(t, err, domain.ErrUnknownCity)
	assert.Zero(t, weather.calls)
}

func TestFetchWeatherAuthErrorNotRetried(t *testing.T) {
	authErr := &domain.AuthError{Source: domain.SourceWeather, Err: errors.New("status 401")}
	weather := &stubWeather{errs: []error{authErr, authErr, authErr}}
	f := newTestFetcher(weather, &stubDemand{}, &stubRawStore{})

	_, err := f.FetchWeather(context.Background(), "Chicago", testRange())

	var got *domain.AuthError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 1, weather.calls)
}

func TestFetchWeatherSchemaErrorPassesThrough(t *testing.T) {
	schemaErr := &domain.SchemaError{Source: domain.SourceWeather, Detail: "row without a date"}
	weather := &stubWeather{errs: []error{schemaErr}}
	f := newTestFetcher(weather, &stubDemand{}, &stubRawStore{})

	_, err := f.FetchWeather(context.Background(), "Chicago", testRange())

	var got *domain.SchemaError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "row without a date", got.Detail)
	assert.Equal(t, 1, weather.calls)

	// The client only sees wire data; the fetcher fills the city in so the
	// message names the failing pair.
	assert.Equal(t, "Chicago", got.City)
	assert.Contains(t, got.Error(), "weather payload for Chicago")
}

func TestFetchWeatherRawSaveFailureDoesNotFailFetch(t *testing.T) {
	weather := &stubWeather{records: []domain.WeatherObservation{{Temperature: fptr(72)}}}
	f := newTestFetcher(weather, &stubDemand{}, &stubRawStore{err: errors.New("disk full")})

	records, err := f.FetchWeather(context.Background(), "Chicago", testRange())

	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFetchDemandSuccess(t *testing.T) {
	demand := &stubDemand{
		records: []domain.DemandRecord{
			{Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Demand: fptr(9000)},
		},
		payload: []byte(`{"response":{}}`),
	}
	raws := &stubRawStore{}
	f := newTestFetcher(&stubWeather{}, demand, raws)

	records, err := f.FetchDemand(context.Background(), "CHICAGO", testRange())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Chicago", records[0].City)
	require.Len(t, raws.saves, 1)
	assert.Equal(t, domain.SourceDemand, raws.saves[0].source)
}

func TestFetchDemandPermanentFailure(t *testing.T) {
	demand := &stubDemand{err: errors.New("unexpected status 400")}
	f := newTestFetcher(&stubWeather{}, demand, &stubRawStore{})

	_, err := f.FetchDemand(context.Background(), "Chicago", testRange())

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 1, fetchErr.Attempts)
	assert.Equal(t, 1, demand.calls)
}

func fptr(v float64) *float64 { return &v }
