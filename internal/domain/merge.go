package domain

import (
	"sort"
	"time"
)

// MergeResult is the unified table plus the join losses the quality report
// needs. Records are ordered ascending by (city, date) and contain exactly
// one row per (city, date) pair.
type MergeResult struct {
	Records          []MergedRecord
	UnmatchedWeather int
	UnmatchedDemand  int
}

type cityDate struct {
	city string
	date time.Time
}

// Merge inner-joins the two per-source streams on (city, date). A date must
// appear in both sources to produce a MergedRecord; unmatched dates are
// dropped and counted per source. Duplicate (city, date) keys within one
// source keep the last record seen, preserving the uniqueness invariant.
func Merge(weather []WeatherObservation, demand []DemandRecord) MergeResult {
	wx := make(map[cityDate]WeatherObservation, len(weather))
	for _, w := range weather {
		wx[cityDate{w.City, Day(w.Date)}] = w
	}
	dm := make(map[cityDate]DemandRecord, len(demand))
	for _, d := range demand {
		dm[cityDate{d.City, Day(d.Date)}] = d
	}

	records := make([]MergedRecord, 0, len(wx))
	unmatchedWeather := 0
	for key, w := range wx {
		d, ok := dm[key]
		if !ok {
			unmatchedWeather++
			continue
		}
		records = append(records, MergedRecord{
			City:        key.city,
			Date:        key.date,
			Temperature: w.Temperature,
			Demand:      d.Demand,
			IsWeekend:   isWeekend(key.date),
		})
	}

	unmatchedDemand := 0
	for key := range dm {
		if _, ok := wx[key]; !ok {
			unmatchedDemand++
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].City != records[j].City {
			return records[i].City < records[j].City
		}
		return records[i].Date.Before(records[j].Date)
	})

	return MergeResult{
		Records:          records,
		UnmatchedWeather: unmatchedWeather,
		UnmatchedDemand:  unmatchedDemand,
	}
}

func isWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
