package dispatch_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/dispatch"
	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	runs atomic.Int64
}

func (r *countingRunner) Run(context.Context) (models.RunSummary, error) {
	r.runs.Add(1)
	return models.RunSummary{}, nil
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := dispatch.NewScheduler(&countingRunner{}, "not a cron spec", zerolog.Nop())

	err := s.Start(context.Background())
	require.Error(t, err)
}

func TestSchedulerRunsOnSchedule(t *testing.T) {
	runner := &countingRunner{}
	// Every second, so the test observes at least one firing.
	s := dispatch.NewScheduler(runner, "* * * * * *", zerolog.Nop())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	deadline := time.After(3 * time.Second)
	for runner.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduled run never fired")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestSchedulerStopIsSafeWithoutStart(t *testing.T) {
	s := dispatch.NewScheduler(&countingRunner{}, "0 0 6 * * *", zerolog.Nop())

	assert.NotPanics(t, s.Stop)
}
