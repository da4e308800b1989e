package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fptr(v float64) *float64 { return &v }

func wobs(city string, date time.Time, temp *float64) WeatherObservation {
	return WeatherObservation{City: city, Date: date, Temperature: temp}
}

func drec(city string, date time.Time, demand *float64) DemandRecord {
	return DemandRecord{City: city, Date: date, Demand: demand}
}

func TestMergeInnerJoin(t *testing.T) {
	d1, d2, d3, d4 := day(2026, 8, 17), day(2026, 8, 18), day(2026, 8, 19), day(2026, 8, 20)

	weather := []WeatherObservation{
		wobs("Chicago", d1, fptr(70)),
		wobs("Chicago", d2, fptr(72)),
		wobs("Chicago", d3, fptr(74)),
	}
	demand := []DemandRecord{
		drec("Chicago", d2, fptr(9000)),
		drec("Chicago", d3, fptr(9100)),
		drec("Chicago", d4, fptr(9200)),
	}

	res := Merge(weather, demand)

	require.Len(t, res.Records, 2)
	assert.Equal(t, d2, res.Records[0].Date)
	assert.Equal(t, d3, res.Records[1].Date)
	assert.Equal(t, 1, res.UnmatchedWeather)
	assert.Equal(t, 1, res.UnmatchedDemand)

	assert.Equal(t, 72.0, *res.Records[0].Temperature)
	assert.Equal(t, 9000.0, *res.Records[0].Demand)
}

func TestMergeKeyedByCityAndDate(t *testing.T) {
	d := day(2026, 8, 18)

	// Same date, different cities: no cross-city matches.
	res := Merge(
		[]WeatherObservation{wobs("Chicago", d, fptr(70))},
		[]DemandRecord{drec("Houston", d, fptr(12000))},
	)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.UnmatchedWeather)
	assert.Equal(t, 1, res.UnmatchedDemand)
}

func TestMergeDuplicateKeysKeepLast(t *testing.T) {
	d := day(2026, 8, 18)

	res := Merge(
		[]WeatherObservation{
			wobs("Chicago", d, fptr(70)),
			wobs("Chicago", d, fptr(75)),
		},
		[]DemandRecord{drec("Chicago", d, fptr(9000))},
	)

	require.Len(t, res.Records, 1)
	assert.Equal(t, 75.0, *res.Records[0].Temperature)
}

func TestMergeOrdering(t *testing.T) {
	d1, d2 := day(2026, 8, 17), day(2026, 8, 18)

	weather := []WeatherObservation{
		wobs("Houston", d2, fptr(95)),
		wobs("Chicago", d2, fptr(72)),
		wobs("Chicago", d1, fptr(70)),
	}
	demand := []DemandRecord{
		drec("Chicago", d1, fptr(9000)),
		drec("Houston", d2, fptr(12000)),
		drec("Chicago", d2, fptr(9100)),
	}

	res := Merge(weather, demand)
	require.Len(t, res.Records, 3)
	assert.Equal(t, "Chicago", res.Records[0].City)
	assert.Equal(t, d1, res.Records[0].Date)
	assert.Equal(t, "Chicago", res.Records[1].City)
	assert.Equal(t, d2, res.Records[1].Date)
	assert.Equal(t, "Houston", res.Records[2].City)
}

func TestMergeWeekendFlag(t *testing.T) {
	sat := day(2026, 8, 22) // Saturday
	mon := day(2026, 8, 24) // Monday

	res := Merge(
		[]WeatherObservation{wobs("Seattle", sat, fptr(68)), wobs("Seattle", mon, fptr(70))},
		[]DemandRecord{drec("Seattle", sat, fptr(4000)), drec("Seattle", mon, fptr(5000))},
	)

	require.Len(t, res.Records, 2)
	assert.True(t, res.Records[0].IsWeekend)
	assert.False(t, res.Records[1].IsWeekend)
}

func TestMergeCarriesNilValues(t *testing.T) {
	d := day(2026, 8, 18)

	res := Merge(
		[]WeatherObservation{wobs("Phoenix", d, nil)},
		[]DemandRecord{drec("Phoenix", d, fptr(15000))},
	)

	require.Len(t, res.Records, 1)
	assert.Nil(t, res.Records[0].Temperature)
	require.NotNil(t, res.Records[0].Demand)
}

func TestMergeEmptyInputs(t *testing.T) {
	res := Merge(nil, nil)
	assert.Empty(t, res.Records)
	assert.Zero(t, res.UnmatchedWeather)
	assert.Zero(t, res.UnmatchedDemand)
}
