package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
)

type stubReadiness struct{ err error }

func (s *stubReadiness) CheckReadiness(context.Context) error { return s.err }

type stubReports struct {
	report domain.QualityReport
	err    error
}

func (s *stubReports) LatestQualityReport(context.Context) (domain.QualityReport, error) {
	return s.report, s.err
}

func newTestServer(ready *stubReadiness, reports *stubReports) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(":0", ready, reports, logger)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&stubReadiness{}, &stubReports{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv := newTestServer(&stubReadiness{}, &stubReports{})

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not ready", func(t *testing.T) {
		srv := newTestServer(&stubReadiness{err: errors.New("no completed run")}, &stubReports{})

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "no completed run")
	})
}

func TestLatestReportEndpoint(t *testing.T) {
	t.Run("serves latest report", func(t *testing.T) {
		report := domain.QualityReport{
			RunID:       "run-42",
			GeneratedAt: time.Date(2026, 8, 26, 6, 0, 0, 0, time.UTC),
			RowCount:    450,
			MissingValues: map[string]int{
				domain.ColumnTemperature: 3,
				domain.ColumnDemand:      1,
			},
			Freshness: domain.Freshness{Status: domain.FreshnessFresh, AgeDays: 1},
		}
		srv := newTestServer(&stubReadiness{}, &stubReports{report: report})

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/latest", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got domain.QualityReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "run-42", got.RunID)
		assert.Equal(t, 450, got.RowCount)
		assert.Equal(t, domain.FreshnessFresh, got.Freshness.Status)
	})

	t.Run("no report archived yet", func(t *testing.T) {
		srv := newTestServer(&stubReadiness{}, &stubReports{err: sql.ErrNoRows})

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/latest", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		srv := newTestServer(&stubReadiness{}, &stubReports{err: errors.New("locked")})

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/latest", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&stubReadiness{}, &stubReports{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
