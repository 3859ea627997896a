package forecast_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/bikeweatherapp/bike-weather-api/internal/services/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyClient struct {
	err   error
	calls atomic.Int64
}

func (c *flakyClient) FetchByLocation(
	_ context.Context,
	loc models.Location,
) (models.LocationForecast, error) {
	c.calls.Add(1)
	if c.err != nil {
		return models.LocationForecast{}, c.err
	}
	return models.LocationForecast{Location: loc, FetchedAt: time.Now()}, nil
}

func TestBreakerPassesThroughResults(t *testing.T) {
	inner := &flakyClient{}
	b := forecast.NewBreakerClient("openweather", inner)

	fc, err := b.FetchByLocation(context.Background(), models.NewLocation("Boston", "MA"))

	require.NoError(t, err)
	assert.Equal(t, "Boston", fc.Location.City)
}

func TestBreakerPreservesErrorKinds(t *testing.T) {
	inner := &flakyClient{err: forecast.ErrRateLimited}
	b := forecast.NewBreakerClient("openweather", inner)

	_, err := b.FetchByLocation(context.Background(), models.NewLocation("Boston", "MA"))

	assert.ErrorIs(t, err, forecast.ErrRateLimited)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyClient{err: errors.New("boom")}
	b := forecast.NewBreakerClient("openweather", inner)
	loc := models.NewLocation("Boston", "MA")

	for i := 0; i < 5; i++ {
		_, err := b.FetchByLocation(context.Background(), loc)
		require.Error(t, err)
	}

	// The breaker is now open: the upstream is no longer consulted and callers
	// see the transient error kind.
	_, err := b.FetchByLocation(context.Background(), loc)
	assert.ErrorIs(t, err, forecast.ErrUpstreamUnavailable)
	assert.EqualValues(t, 5, inner.calls.Load())
}
