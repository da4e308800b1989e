package noaa

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
	"github.com/gridpulse/demand-weather-etl/internal/fetch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRange() domain.DateRange {
	return domain.DateRange{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC),
	}
}

func fptr(v float64) *float64 { return &v }

func TestFetchDailyPivotsRows(t *testing.T) {
	var gotQuery map[string][]string
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotToken = r.Header.Get("token")
		w.Write([]byte(`{"results":[
			{"date":"2026-08-01T00:00:00","datatype":"TMAX","station":"GHCND:USW00094846","value":88},
			{"date":"2026-08-01T00:00:00","datatype":"TMIN","station":"GHCND:USW00094846","value":62},
			{"date":"2026-08-02T00:00:00","datatype":"TMAX","station":"GHCND:USW00094846","value":90},
			{"date":"2026-08-03T00:00:00","datatype":"TMIN","station":"GHCND:USW00094846","value":64}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token", time.Second, testLogger())
	observations, payload, err := c.FetchDaily(context.Background(), "GHCND:USW00094846", testRange())

	require.NoError(t, err)
	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, []string{"GHCND"}, gotQuery["datasetid"])
	assert.Equal(t, []string{"GHCND:USW00094846"}, gotQuery["stationid"])
	assert.Equal(t, []string{"2026-08-01"}, gotQuery["startdate"])
	assert.Equal(t, []string{"2026-08-03"}, gotQuery["enddate"])
	assert.ElementsMatch(t, []string{"TMAX", "TMIN"}, gotQuery["datatypeid"])
	assert.Equal(t, []string{"standard"}, gotQuery["units"])

	require.Len(t, observations, 3)

	// Both datatypes present: mean of the two.
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), observations[0].Date)
	assert.Equal(t, 75.0, *observations[0].Temperature)
	assert.Equal(t, "date", observations[0].DateField)
	assert.Equal(t, "GHCND:USW00094846", observations[0].StationID)

	// Only one datatype: that value stands in.
	assert.Equal(t, 90.0, *observations[1].Temperature)
	assert.Equal(t, 64.0, *observations[2].Temperature)

	assert.Contains(t, string(payload), "results")
}

func TestFetchDailyMissingValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"date":"2026-08-01T00:00:00","datatype":"TMAX","value":null},
			{"date":"2026-08-01T00:00:00","datatype":"TMIN","value":null}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, testLogger())
	observations, _, err := c.FetchDaily(context.Background(), "GHCND:X", testRange())

	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Nil(t, observations[0].Temperature)
}

func TestFetchDailyPeriodFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"period":"2026-08-01","datatype":"TMAX","value":85}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, testLogger())
	observations, _, err := c.FetchDaily(context.Background(), "GHCND:X", testRange())

	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, "period", observations[0].DateField)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), observations[0].Date)
}

func TestFetchDailyRowWithoutDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"datatype":"TMAX","value":85}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, testLogger())
	_, _, err := c.FetchDaily(context.Background(), "GHCND:X", testRange())

	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, domain.SourceWeather, schemaErr.Source)
}

func TestFetchDailyStatusMapping(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad token", http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "bad", time.Second, testLogger())
		_, _, err := c.FetchDaily(context.Background(), "GHCND:X", testRange())

		var authErr *domain.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, domain.SourceWeather, authErr.Source)
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "tok", time.Second, testLogger())
		_, _, err := c.FetchDaily(context.Background(), "GHCND:X", testRange())

		assert.ErrorIs(t, err, fetch.ErrRateLimited)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "tok", time.Second, testLogger())
		_, _, err := c.FetchDaily(context.Background(), "GHCND:X", testRange())

		assert.ErrorIs(t, err, fetch.ErrServerError)
	})
}

func TestMeanTemp(t *testing.T) {
	assert.Equal(t, 75.0, *meanTemp(fptr(88), fptr(62)))
	assert.Equal(t, 88.0, *meanTemp(fptr(88), nil))
	assert.Equal(t, 62.0, *meanTemp(nil, fptr(62)))
	assert.Nil(t, meanTemp(nil, nil))
}
