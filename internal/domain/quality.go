package domain

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Validated column names and flag reasons as they appear in reports.
const (
	ColumnTemperature = "temperature"
	ColumnDemand      = "demand"

	ReasonRange    = "range"    // temperature outside the physical bounds
	ReasonNegative = "negative" // demand below zero
	ReasonSpike    = "spike"    // demand above the IQR spike bound
)

// QualityConfig holds the validator thresholds. Values come from the
// run configuration; the zero value is not usable.
type QualityConfig struct {
	TempMinF            float64 // lowest plausible temperature, °F
	TempMaxF            float64 // highest plausible temperature, °F
	SpikeIQRMultiplier  float64 // demand spike bound is Q3 + mult×IQR
	FreshnessMaxAgeDays int     // max age of the newest row before STALE
}

// Validate runs the fixed-order quality checks over a merged table:
// missing-value scan, outlier scan, freshness check. It is a pure function
// of its inputs plus the package clock: validating the same table twice
// yields an identical report.
//
// The returned records are a copy of the input with flagged rows marked
// ExcludedFromStats; rows are never dropped. The freshness check only
// raises a flag, it never blocks the pipeline.
func Validate(runID string, merged MergeResult, cfg QualityConfig) ([]MergedRecord, QualityReport) {
	records := make([]MergedRecord, len(merged.Records))
	copy(records, merged.Records)

	missing := scanMissing(records)
	groups := scanOutliers(records, cfg)
	outliers := SumOutlierGroups(groups...)

	return records, QualityReport{
		RunID:            runID,
		GeneratedAt:      clock.Now().UTC(),
		RowCount:         len(records),
		MissingValues:    missing,
		Outliers:         flattenOutliers(outliers),
		Freshness:        checkFreshness(records, cfg.FreshnessMaxAgeDays),
		UnmatchedWeather: merged.UnmatchedWeather,
		UnmatchedDemand:  merged.UnmatchedDemand,
	}
}

// scanMissing counts nil entries per column. It does not mutate rows.
func scanMissing(records []MergedRecord) map[string]int {
	missing := map[string]int{ColumnTemperature: 0, ColumnDemand: 0}
	for _, r := range records {
		if r.Temperature == nil {
			missing[ColumnTemperature]++
		}
		if r.Demand == nil {
			missing[ColumnDemand]++
		}
	}
	return missing
}

// scanOutliers flags out-of-range temperatures and negative or spiking
// demand values, marking flagged rows in place. It returns counts grouped
// per city; SumOutlierGroups folds the groups into the flat report total.
func scanOutliers(records []MergedRecord, cfg QualityConfig) []map[OutlierKey]int {
	spikeBound, hasSpikeBound := demandSpikeBound(records, cfg.SpikeIQRMultiplier)

	byCity := make(map[string]map[OutlierKey]int)
	flag := func(i int, city, column, reason string) {
		records[i].ExcludedFromStats = true
		if records[i].ExclusionReason == "" {
			records[i].ExclusionReason = column + ":" + reason
		} else {
			records[i].ExclusionReason += "," + column + ":" + reason
		}
		if byCity[city] == nil {
			byCity[city] = make(map[OutlierKey]int)
		}
		byCity[city][OutlierKey{Column: column, Reason: reason}]++
	}

	for i, r := range records {
		if r.Temperature != nil && (*r.Temperature < cfg.TempMinF || *r.Temperature > cfg.TempMaxF) {
			flag(i, r.City, ColumnTemperature, ReasonRange)
		}
		if r.Demand != nil {
			if *r.Demand < 0 {
				flag(i, r.City, ColumnDemand, ReasonNegative)
			} else if hasSpikeBound && *r.Demand > spikeBound {
				flag(i, r.City, ColumnDemand, ReasonSpike)
			}
		}
	}

	cities := make([]string, 0, len(byCity))
	for city := range byCity {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	groups := make([]map[OutlierKey]int, 0, len(byCity))
	for _, city := range cities {
		groups = append(groups, byCity[city])
	}
	return groups
}

// SumOutlierGroups folds per-group outlier counts into one flat mapping
// keyed by (column, reason). Counts arriving as nested groupings (per
// city, per batch, or groups already folded once) sum to the
// same total as a flat tally.
func SumOutlierGroups(groups ...map[OutlierKey]int) map[OutlierKey]int {
	total := make(map[OutlierKey]int)
	for _, g := range groups {
		for key, n := range g {
			total[key] += n
		}
	}
	return total
}

// flattenOutliers converts the flat mapping into the sorted slice form a
// report carries, so identical tables serialize byte-identically.
func flattenOutliers(counts map[OutlierKey]int) []OutlierCount {
	out := make([]OutlierCount, 0, len(counts))
	for key, n := range counts {
		out = append(out, OutlierCount{Column: key.Column, Reason: key.Reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Column != out[j].Column {
			return out[i].Column < out[j].Column
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// demandSpikeBound derives the statistical upper bound for demand:
// Q3 + mult×IQR over the present demand values. The bool is false when the
// table has no demand values to derive a bound from.
func demandSpikeBound(records []MergedRecord, mult float64) (float64, bool) {
	values := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Demand != nil {
			values = append(values, *r.Demand)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	sort.Float64s(values)
	q1 := stat.Quantile(0.25, stat.Empirical, values, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, values, nil)
	return q3 + mult*(q3-q1), true
}

// checkFreshness computes the age of the newest row as now minus max(date).
// An empty table is STALE by definition.
func checkFreshness(records []MergedRecord, maxAgeDays int) Freshness {
	var maxDate time.Time
	for _, r := range records {
		if r.Date.After(maxDate) {
			maxDate = r.Date
		}
	}
	if maxDate.IsZero() {
		return Freshness{Status: FreshnessStale}
	}

	ageDays := int(clock.Now().UTC().Sub(maxDate).Hours() / 24)
	status := FreshnessFresh
	if ageDays > maxAgeDays {
		status = FreshnessStale
	}
	return Freshness{Status: status, MaxDate: maxDate, AgeDays: ageDays}
}
