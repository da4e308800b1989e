// Package eia implements the demand source against an EIA v2-style
// electricity API.
package eia

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
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
	"github.com/gridpulse/demand-weather-etl/internal/fetch"
)

// Client implements fetch.DemandSource.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a demand source client. apiKey is the externally
// supplied credential, sent per request as the api_key query parameter.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "eia",
			Interval: time.Minute,
			Timeout:  2 * time.Minute,
		}),
		logger: logger,
	}
}

// FetchDaily retrieves the region's daily demand rows for the range. The
// EIA wire format carries the date under "period"; canonicalization records
// that provenance on each record. A row whose value is absent or not
// numeric yields a record with a missing demand rather than being dropped,
// so the quality report can count it.
func (c *Client) FetchDaily(ctx context.Context, regionID string, rng domain.DateRange) ([]domain.DemandRecord, []byte, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("frequency", "daily")
	params.Set("start", rng.Start.Format("2006-01-02"))
	params.Set("end", rng.End.Format("2006-01-02"))
	params.Set("data[0]", "value")
	params.Set("facets[respondent][]", regionID)
	params.Set("sort[0][column]", "period")
	params.Set("sort[0][direction]", "asc")

	payload, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, nil, err
	}

	var resp envelope
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, nil, fmt.Errorf("decode demand response: %w", err)
	}

	records := make([]domain.DemandRecord, 0, len(resp.Response.Data))
	for _, row := range resp.Response.Data {
		date, field, err := domain.CanonicalDate(row.Date, row.Period)
		if err != nil {
			return nil, nil, &domain.SchemaError{
				Source: domain.SourceDemand,
				Detail: fmt.Sprintf("region %s: %v", regionID, err),
			}
		}
		records = append(records, domain.DemandRecord{
			Date:      date,
			Demand:    parseDemand(row.Value),
			RegionID:  row.Respondent,
			DateField: field,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records, payload, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

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
			return nil, fetch.StatusError(domain.SourceDemand, resp.StatusCode, body)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("demand source circuit open: %w", err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

// parseDemand tolerates the API serializing values as numbers, quoted
// strings, or null. Anything non-numeric becomes a missing value.
func parseDemand(raw json.RawMessage) *float64 {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Wire types for the EIA v2 response envelope.

type envelope struct {
	Response struct {
		Data []dataRow `json:"data"`
	} `json:"response"`
}

type dataRow struct {
	Date       string          `json:"date"`
	Period     string          `json:"period"`
	Respondent string          `json:"respondent"`
	Value      json.RawMessage `json:"value"`
}
