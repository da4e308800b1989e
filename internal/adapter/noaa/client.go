// Package noaa implements the weather source against an NCEI CDO-style
// daily-summaries API.
package noaa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
	"github.com/gridpulse/demand-weather-etl/internal/fetch"
)

// Client implements fetch.WeatherSource.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a weather source client. token is the externally
// supplied API credential, sent per request in the "token" header.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "noaa",
			Interval: time.Minute,
			Timeout:  2 * time.Minute,
		}),
		logger: logger,
	}
}

// FetchDaily retrieves the station's TMAX/TMIN rows for the range and
// folds them into one observation per day: the mean of the two when both
// are present, the single present one otherwise, a missing temperature
// when neither carries a value.
func (c *Client) FetchDaily(ctx context.Context, stationID string, rng domain.DateRange) ([]domain.WeatherObservation, []byte, error) {
	params := url.Values{}
	params.Set("datasetid", "GHCND")
	params.Set("stationid", stationID)
	params.Set("startdate", rng.Start.Format("2006-01-02"))
	params.Set("enddate", rng.End.Format("2006-01-02"))
	params.Add("datatypeid", "TMAX")
	params.Add("datatypeid", "TMIN")
	params.Set("units", "standard")
	params.Set("limit", "1000")

	payload, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, nil, err
	}

	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, nil, fmt.Errorf("decode weather response: %w", err)
	}

	observations, err := foldDaily(resp.Results, stationID)
	if err != nil {
		return nil, nil, err
	}
	return observations, payload, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("token", c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", fetch.ErrServerError, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fetch.StatusError(domain.SourceWeather, resp.StatusCode, body)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("weather source circuit open: %w", err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

// foldDaily pivots per-datatype rows into one observation per day.
func foldDaily(rows []resultRow, stationID string) ([]domain.WeatherObservation, error) {
	type daily struct {
		tmax, tmin *float64
		dateField  string
		station    string
	}
	byDay := make(map[time.Time]*daily)

	for _, row := range rows {
		date, field, err := domain.CanonicalDate(row.Date, row.Period)
		if err != nil {
			return nil, &domain.SchemaError{
				Source: domain.SourceWeather,
				Detail: fmt.Sprintf("station %s: %v", stationID, err),
			}
		}
		d := byDay[date]
		if d == nil {
			d = &daily{dateField: field, station: stationID}
			byDay[date] = d
		}
		if row.Station != "" {
			d.station = row.Station
		}
		switch row.Datatype {
		case "TMAX":
			d.tmax = row.Value
		case "TMIN":
			d.tmin = row.Value
		}
	}

	observations := make([]domain.WeatherObservation, 0, len(byDay))
	for date, d := range byDay {
		observations = append(observations, domain.WeatherObservation{
			Date:        date,
			Temperature: meanTemp(d.tmax, d.tmin),
			StationID:   d.station,
			DateField:   d.dateField,
		})
	}
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Date.Before(observations[j].Date)
	})
	return observations, nil
}

func meanTemp(tmax, tmin *float64) *float64 {
	switch {
	case tmax != nil && tmin != nil:
		m := (*tmax + *tmin) / 2
		return &m
	case tmax != nil:
		return tmax
	case tmin != nil:
		return tmin
	default:
		return nil
	}
}

// Wire types for the CDO daily-summaries response.

type response struct {
	Results []resultRow `json:"results"`
}

type resultRow struct {
	Date     string   `json:"date"`
	Period   string   `json:"period"`
	Datatype string   `json:"datatype"`
	Station  string   `json:"station"`
	Value    *float64 `json:"value"`
}
