// Command etl runs one batch of the demand/weather pipeline: fetch both
// sources for every registry city, merge, validate, correlate, and persist
// the artifacts. Operational endpoints are served while the run is active.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridpulse/demand-weather-etl/internal/adapter/eia"
	httpadapter "github.com/gridpulse/demand-weather-etl/internal/adapter/http"
	kafkaadapter "github.com/gridpulse/demand-weather-etl/internal/adapter/kafka"
	"github.com/gridpulse/demand-weather-etl/internal/adapter/noaa"
	"github.com/gridpulse/demand-weather-etl/internal/config"
	"github.com/gridpulse/demand-weather-etl/internal/domain"
	"github.com/gridpulse/demand-weather-etl/internal/fetch"
	"github.com/gridpulse/demand-weather-etl/internal/observability"
	"github.com/gridpulse/demand-weather-etl/internal/pipeline"
	"github.com/gridpulse/demand-weather-etl/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	raws, err := store.NewRawStore(cfg.RawDataDir)
	if err != nil {
		logger.Error("failed to create raw store", "error", err)
		os.Exit(1)
	}

	perRequestTimeout := 30 * time.Second
	fetcher := fetch.New(fetch.Params{
		Weather:  noaa.NewClient(cfg.WeatherBaseURL, cfg.WeatherToken, perRequestTimeout, logger),
		Demand:   eia.NewClient(cfg.DemandBaseURL, cfg.DemandAPIKey, perRequestTimeout, logger),
		Raws:     raws,
		Registry: cfg.Registry(),
		Policy: fetch.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Std(),
			MaxDelay:    cfg.Retry.MaxDelay.Std(),
			Jitter:      cfg.Retry.Jitter,
		},
		Timeout: cfg.FetchTimeout.Std(),
		Logger:  logger,
		Metrics: metrics,
	})

	// Kafka output is feature-flagged; the SQLite artifact alone serves the
	// dashboard when disabled.
	var publisher pipeline.Publisher
	var kafkaPub *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPub = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publisher = kafkaPub
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	cities := make([]string, len(cfg.Cities))
	for i, c := range cfg.Cities {
		cities[i] = c.Name
	}

	p := pipeline.New(fetcher, db, publisher, cities, pipeline.Config{
		FetchConcurrency: cfg.FetchConcurrency,
		Quality: domain.QualityConfig{
			TempMinF:            cfg.Quality.TempMinF,
			TempMaxF:            cfg.Quality.TempMaxF,
			SpikeIQRMultiplier:  cfg.Quality.SpikeIQRMultiplier,
			FreshnessMaxAgeDays: cfg.Quality.FreshnessMaxAgeDays,
		},
		Correlation: domain.CorrelationConfig{
			StrongCutoff:   cfg.Correlation.StrongCutoff,
			ModerateCutoff: cfg.Correlation.ModerateCutoff,
			MinSampleSize:  cfg.Correlation.MinSampleSize,
		},
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Trailing window ending today.
	end := domain.Day(time.Now())
	rng := domain.DateRange{Start: end.AddDate(0, 0, -cfg.WindowDays), End: end}

	summary, runErr := p.Run(ctx, rng)
	if runErr != nil {
		logger.Error("run failed", "error", runErr)
	} else {
		logger.Info("run finished", "run_id", summary.RunID, "merged_rows", summary.MergedRows)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
}
