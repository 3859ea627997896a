package models_test

import (
	"testing"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNewLocationNormalizes(t *testing.T) {
	loc := models.NewLocation("  Boston ", " ma ")

	assert.Equal(t, "Boston", loc.City)
	assert.Equal(t, "MA", loc.State)
}

func TestLocationKeyIsCaseInsensitive(t *testing.T) {
	a := models.NewLocation("Boston", "MA")
	b := models.NewLocation("BOSTON", "ma")

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "boston,ma", a.Key())
}

func TestRunSummaryRecord(t *testing.T) {
	var s models.RunSummary

	s.Record(models.DispatchResult{Email: "a@b.c", Outcome: models.OutcomeSent})
	s.Record(models.DispatchResult{Email: "d@e.f", Outcome: models.OutcomeSkipped, Reason: "invalid_location"})
	s.Record(models.DispatchResult{Email: "g@h.i", Outcome: models.OutcomeFailed, Reason: "rate_limited"})

	assert.Equal(t, 1, s.Sent)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 3, s.Total())

	// Only failures carry detail records.
	assert.Len(t, s.Failures, 1)
	assert.Equal(t, "g@h.i", s.Failures[0].Email)
}
