package models

import (
	"strings"
	"time"
)

// ForecastDays is how many days a digest covers.
const ForecastDays = 5

// Location is a normalized (city, state) pair used as a forecast cache key.
type Location struct {
	City  string
	State string
}

// NewLocation trims whitespace and upper-cases the state abbreviation.
func NewLocation(city, state string) Location {
	return Location{
		City:  strings.TrimSpace(city),
		State: strings.ToUpper(strings.TrimSpace(state)),
	}
}

// Key returns a case-insensitive identity for grouping and caching.
func (l Location) Key() string {
	return strings.ToLower(l.City) + "," + strings.ToLower(l.State)
}

func (l Location) String() string {
	return l.City + ", " + l.State
}

// DayForecast is one aggregated day of an upstream forecast.
// Temperatures are feels-like °F, wind in mph, PrecipProb in [0,1].
type DayForecast struct {
	Date       time.Time
	HighTemp   float64
	LowTemp    float64
	PrecipProb float64
	WindSpeed  float64
	Condition  string

	// Missing marks a day the upstream did not cover. The slot is kept so a
	// partial payload still yields exactly ForecastDays entries.
	Missing bool
}

// LocationForecast is the normalized ForecastDays-day forecast for one location.
// It lives only for the duration of a dispatch run or a preview request.
type LocationForecast struct {
	Location  Location
	Days      []DayForecast
	FetchedAt time.Time
}
