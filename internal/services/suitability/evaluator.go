// Package suitability classifies a forecast day for riding. Evaluate is a pure
// function: identical input always yields an identical verdict, so verdicts can
// be computed once per location group and shared.
package suitability

import (
	"fmt"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
)

// Riding thresholds. The temperature floors carry over from the original
// signup defaults; wind and precipitation bounds follow common commuter lore.
const (
	// MaxPrecipProb is the precipitation probability above which a day is
	// poor no matter how warm it is.
	MaxPrecipProb = 0.60

	// LikelyPrecipProb is where the cold floor switches to the wet-weather one.
	LikelyPrecipProb = 0.30

	// MinTempNoPrecipF is the comfortable-band floor on a dry day.
	MinTempNoPrecipF = 33.0

	// MinTempWithPrecipF is the floor once precipitation is likely.
	MinTempWithPrecipF = 45.0

	// MaxTempF is the comfortable-band ceiling.
	MaxTempF = 95.0

	// HardColdFloorF is the high-temperature reading below which the day is
	// poor outright.
	HardColdFloorF = 20.0

	// MaxWindMph downgrades the verdict one level when exceeded.
	MaxWindMph = 18.0
)

// Evaluate maps one day's forecast to a verdict with a rationale.
func Evaluate(day models.DayForecast) models.SuitabilityVerdict {
	if day.Missing {
		return models.SuitabilityVerdict{
			Verdict:   models.VerdictPoor,
			Rationale: "forecast unavailable for this day",
		}
	}

	if day.PrecipProb > MaxPrecipProb {
		return models.SuitabilityVerdict{
			Verdict: models.VerdictPoor,
			Rationale: fmt.Sprintf("%.0f%% chance of precipitation, roads will be wet",
				day.PrecipProb*100),
		}
	}

	if day.HighTemp < HardColdFloorF {
		return models.SuitabilityVerdict{
			Verdict:   models.VerdictPoor,
			Rationale: fmt.Sprintf("high of %.0f°F is dangerously cold", day.HighTemp),
		}
	}

	verdict := models.VerdictGood
	rationale := fmt.Sprintf("high %.0f°F, %s", day.HighTemp, day.Condition)

	floor := MinTempNoPrecipF
	if day.PrecipProb > LikelyPrecipProb {
		floor = MinTempWithPrecipF
	}

	switch {
	case day.HighTemp < floor:
		verdict = models.VerdictMarginal
		rationale = fmt.Sprintf("high of %.0f°F is below the comfortable riding band", day.HighTemp)
	case day.HighTemp > MaxTempF:
		verdict = models.VerdictMarginal
		rationale = fmt.Sprintf("high of %.0f°F is above the comfortable riding band", day.HighTemp)
	}

	if day.WindSpeed > MaxWindMph {
		verdict = downgrade(verdict)
		rationale += fmt.Sprintf(", wind up to %.0f mph", day.WindSpeed)
	}

	return models.SuitabilityVerdict{Verdict: verdict, Rationale: rationale}
}

// EvaluateAll computes a verdict per forecast day, in order.
func EvaluateAll(days []models.DayForecast) []models.SuitabilityVerdict {
	verdicts := make([]models.SuitabilityVerdict, len(days))
	for i, day := range days {
		verdicts[i] = Evaluate(day)
	}
	return verdicts
}

func downgrade(v models.Verdict) models.Verdict {
	switch v {
	case models.VerdictGood:
		return models.VerdictMarginal
	default:
		return models.VerdictPoor
	}
}
