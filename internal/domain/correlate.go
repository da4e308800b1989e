package domain

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CorrelationConfig holds the engine's classification cutoffs and the
// minimum row count below which a segment is reported as INSUFFICIENT.
type CorrelationConfig struct {
	StrongCutoff   float64 // |r| at or above this is STRONG
	ModerateCutoff float64 // |r| at or above this (below strong) is MODERATE
	MinSampleSize  int     // segments smaller than this get no numeric r
}

// Correlate computes the Pearson correlation between temperature and demand
// over the valid rows of a merged table: once globally over the pool of all
// cities, and once independently per city. Both scopes are always produced;
// a pooled figure over heterogeneous cities can be weaker or stronger than
// any individual city's, so neither replaces the other.
//
// Valid rows are those not excluded by the validator and carrying both
// values. A segment below the minimum sample size is reported as
// INSUFFICIENT with no coefficient at all.
func Correlate(records []MergedRecord, cfg CorrelationConfig) CorrelationSet {
	byCity := make(map[string][]MergedRecord)
	var pool []MergedRecord
	for _, r := range records {
		if !validForStats(r) {
			continue
		}
		pool = append(pool, r)
		byCity[r.City] = append(byCity[r.City], r)
	}

	cities := make([]string, 0, len(byCity))
	for city := range byCity {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	perCity := make([]CorrelationResult, 0, len(cities))
	for _, city := range cities {
		perCity = append(perCity, correlateSegment(city, byCity[city], cfg))
	}

	return CorrelationSet{
		Global:   correlateSegment(ScopeGlobal, pool, cfg),
		PerCity:  perCity,
		Combined: combineFisher(perCity, cfg),
	}
}

func validForStats(r MergedRecord) bool {
	return !r.ExcludedFromStats && r.Temperature != nil && r.Demand != nil
}

func correlateSegment(scope string, rows []MergedRecord, cfg CorrelationConfig) CorrelationResult {
	if len(rows) < cfg.MinSampleSize {
		return CorrelationResult{Scope: scope, SampleSize: len(rows), Strength: StrengthInsufficient}
	}

	temps := make([]float64, len(rows))
	demands := make([]float64, len(rows))
	for i, r := range rows {
		temps[i] = *r.Temperature
		demands[i] = *r.Demand
	}

	r := stat.Correlation(temps, demands, nil)
	if math.IsNaN(r) {
		// Zero variance in one column; a coefficient would be meaningless.
		return CorrelationResult{Scope: scope, SampleSize: len(rows), Strength: StrengthInsufficient}
	}

	return CorrelationResult{
		Scope:      scope,
		R:          &r,
		SampleSize: len(rows),
		Strength:   classifyStrength(r, cfg),
	}
}

func classifyStrength(r float64, cfg CorrelationConfig) Strength {
	switch abs := math.Abs(r); {
	case abs >= cfg.StrongCutoff:
		return StrengthStrong
	case abs >= cfg.ModerateCutoff:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// combineFisher produces the optional variance-stabilized combination of
// the per-city coefficients: each r is mapped through Fisher's z, averaged
// with weight n−3, and mapped back. Cities without a numeric r or with too
// few rows for a positive weight contribute nothing. The estimate needs at
// least two contributing cities, otherwise it adds nothing over the
// per-city breakdown and is omitted.
func combineFisher(perCity []CorrelationResult, cfg CorrelationConfig) *CorrelationResult {
	var sumWZ, sumW float64
	var n, contributors int
	for _, res := range perCity {
		if res.R == nil || res.SampleSize <= 3 {
			continue
		}
		z := math.Atanh(*res.R)
		if math.IsInf(z, 0) {
			continue
		}
		w := float64(res.SampleSize - 3)
		sumWZ += w * z
		sumW += w
		n += res.SampleSize
		contributors++
	}
	if contributors < 2 || sumW == 0 {
		return nil
	}

	r := math.Tanh(sumWZ / sumW)
	return &CorrelationResult{
		Scope:      "COMBINED",
		R:          &r,
		SampleSize: n,
		Strength:   classifyStrength(r, cfg),
	}
}

// DemandQuartiles computes the 25th and 75th percentile of the table's
// present demand values. ok is false when there are none.
func DemandQuartiles(records []MergedRecord) (q1, q3 float64, ok bool) {
	values := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Demand != nil {
			values = append(values, *r.Demand)
		}
	}
	if len(values) == 0 {
		return 0, 0, false
	}
	sort.Float64s(values)
	return stat.Quantile(0.25, stat.Empirical, values, nil),
		stat.Quantile(0.75, stat.Empirical, values, nil),
		true
}

// ClassifyDemandBand buckets a demand value relative to the column's
// quartiles instead of fixed absolute thresholds: at or below Q1 is LOW,
// at or above Q3 is HIGH, strictly between is MODERATE. A missing value
// is UNKNOWN.
func ClassifyDemandBand(demand *float64, q1, q3 float64) DemandBand {
	switch {
	case demand == nil:
		return BandUnknown
	case *demand <= q1:
		return BandLow
	case *demand >= q3:
		return BandHigh
	default:
		return BandModerate
	}
}
