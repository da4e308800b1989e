package domain

import "time"

// Source identifies one of the two remote data sources.
type Source string

const (
	SourceWeather Source = "weather"
	SourceDemand  Source = "demand"
)

// DateRange is an inclusive day range. Start and End are UTC midnights.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// WeatherObservation is one city-day of weather data as fetched from the
// weather source. Temperature is nil when the source returned the day
// without a usable TMAX or TMIN value.
type WeatherObservation struct {
	City        string
	Date        time.Time
	Temperature *float64 // daily mean temperature, °F
	StationID   string
	DateField   string // wire field the date was taken from: "date" or "period"
}

// DemandRecord is one city-day of electricity demand as fetched from the
// demand source. Demand is nil when the source returned the day without a
// numeric value.
type DemandRecord struct {
	City      string
	Date      time.Time
	Demand    *float64 // MW
	RegionID  string
	DateField string
}

// MergedRecord is the unified per-city-day row produced by the inner join
// of the two sources. It is the pipeline's processed artifact.
//
// Rows flagged by the quality validator stay in the table with
// ExcludedFromStats set; they are never silently dropped.
type MergedRecord struct {
	City              string    `json:"city"`
	Date              time.Time `json:"date"`
	Temperature       *float64  `json:"temperature"`
	Demand            *float64  `json:"demand"`
	IsWeekend         bool      `json:"is_weekend"`
	ExcludedFromStats bool      `json:"excluded_from_stats"`
	ExclusionReason   string    `json:"exclusion_reason,omitempty"`
}

// FreshnessStatus reports whether the newest merged row is recent enough.
type FreshnessStatus string

const (
	FreshnessFresh FreshnessStatus = "FRESH"
	FreshnessStale FreshnessStatus = "STALE"
)

// Freshness is the freshness section of a QualityReport.
type Freshness struct {
	Status  FreshnessStatus `json:"status"`
	MaxDate time.Time       `json:"max_date"`
	AgeDays int             `json:"age_days"`
}

// OutlierKey identifies one class of flagged values.
type OutlierKey struct {
	Column string `json:"column"`
	Reason string `json:"reason"`
}

// OutlierCount is one (column, reason) tally in a QualityReport. Reports
// carry outlier counts as a slice sorted by (column, reason) so that two
// reports over the same table serialize byte-identically.
type OutlierCount struct {
	Column string `json:"column"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// QualityReport is the immutable output of one validator run. Reports are
// append-only: one per pipeline run, archived and never rewritten.
type QualityReport struct {
	RunID            string         `json:"run_id"`
	GeneratedAt      time.Time      `json:"generated_at"`
	RowCount         int            `json:"row_count"`
	MissingValues    map[string]int `json:"missing_values"`
	Outliers         []OutlierCount `json:"outliers"`
	Freshness        Freshness      `json:"freshness"`
	UnmatchedWeather int            `json:"unmatched_weather"`
	UnmatchedDemand  int            `json:"unmatched_demand"`
}

// ScopeGlobal marks the correlation result pooled over all cities.
// Every other scope value is a city name.
const ScopeGlobal = "GLOBAL"

// Strength classifies a correlation coefficient by |r|.
type Strength string

const (
	StrengthStrong       Strength = "STRONG"
	StrengthModerate     Strength = "MODERATE"
	StrengthWeak         Strength = "WEAK"
	StrengthInsufficient Strength = "INSUFFICIENT"
)

// CorrelationResult is the Pearson correlation between temperature and
// demand for one scope. R is nil when the sample was too small to report
// a meaningful coefficient (Strength INSUFFICIENT).
type CorrelationResult struct {
	Scope      string   `json:"scope"`
	R          *float64 `json:"r,omitempty"`
	SampleSize int      `json:"sample_size"`
	Strength   Strength `json:"strength"`
}

// CorrelationSet holds both correlation scopes. Global and PerCity are
// permanently separate outputs: pooling heterogeneous cities can produce a
// global r weaker or stronger than any individual city's, so neither value
// ever substitutes for the other. Combined is an optional Fisher-z
// combination of the per-city coefficients, reported alongside PerCity,
// never instead of it.
type CorrelationSet struct {
	Global   CorrelationResult   `json:"global"`
	PerCity  []CorrelationResult `json:"per_city"`
	Combined *CorrelationResult  `json:"combined,omitempty"`
}

// DemandBand buckets a demand value relative to the column's quartiles.
type DemandBand string

const (
	BandLow      DemandBand = "LOW"
	BandModerate DemandBand = "MODERATE"
	BandHigh     DemandBand = "HIGH"
	BandUnknown  DemandBand = "UNKNOWN"
)
