// Command mocksource serves synthetic NOAA- and EIA-shaped responses so the
// ETL can run end to end without credentials. Data is deterministic per
// (station/region, date): temperature follows a seasonal curve and demand
// follows the usual U-shape against temperature, so the correlation stages
// have real structure to find.
//
// Usage:
//
//	go run ./cmd/mocksource -addr :9090
//	WEATHER_BASE_URL=http://localhost:9090/weather \
//	DEMAND_BASE_URL=http://localhost:9090/demand \
//	NOAA_TOKEN=mock EIA_API_KEY=mock go run ./cmd/etl
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"
)

const dayLayout = "2006-01-02"

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /weather", handleWeather)
	mux.HandleFunc("GET /demand", handleDemand)

	logger.Info("mock sources listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func handleWeather(w http.ResponseWriter, r *http.Request) {
	station := r.URL.Query().Get("stationid")
	start, end, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type row struct {
		Date     string  `json:"date"`
		Datatype string  `json:"datatype"`
		Station  string  `json:"station"`
		Value    float64 `json:"value"`
	}
	var rows []row
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		mean := dailyTemp(station, d)
		rows = append(rows,
			row{Date: d.Format(dayLayout) + "T00:00:00", Datatype: "TMAX", Station: station, Value: round1(mean + 8)},
			row{Date: d.Format(dayLayout) + "T00:00:00", Datatype: "TMIN", Station: station, Value: round1(mean - 8)},
		)
	}
	writeJSON(w, map[string]any{"results": rows})
}

func handleDemand(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("facets[respondent][]")
	start, end, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type row struct {
		Period     string  `json:"period"`
		Respondent string  `json:"respondent"`
		Value      float64 `json:"value"`
	}
	var rows []row
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		temp := dailyTemp(region, d)
		// Demand rises as temperature leaves the comfort band, dips on weekends.
		demand := 8000 + 90*math.Abs(temp-65) + 150*noise(region, d)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			demand *= 0.85
		}
		rows = append(rows, row{Period: d.Format(dayLayout), Respondent: region, Value: round1(demand)})
	}
	writeJSON(w, map[string]any{"response": map[string]any{"data": rows}})
}

// dailyTemp is a seasonal sinusoid offset per key with mild daily noise.
func dailyTemp(key string, d time.Time) float64 {
	base := 45 + 30*math.Sin(2*math.Pi*float64(d.YearDay()-100)/365)
	return base + 10*noise(key, d)
}

// noise returns a deterministic value in [-1, 1) per (key, day).
func noise(key string, d time.Time) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s", key, d.Format(dayLayout))
	return float64(h.Sum64()%2000)/1000 - 1
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	startStr := q.Get("startdate")
	if startStr == "" {
		startStr = q.Get("start")
	}
	endStr := q.Get("enddate")
	if endStr == "" {
		endStr = q.Get("end")
	}
	start, err := time.Parse(dayLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad start date %q", startStr)
	}
	end, err := time.Parse(dayLayout, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad end date %q", endStr)
	}
	return start, end, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort mock response
}
