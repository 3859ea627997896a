package forecast

import (
	"context"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/rs/zerolog"
)

type cacheClient[T any] interface {
	Set(ctx context.Context, key string, value T) error
	Get(ctx context.Context, key string) (T, error)
}

// CachedClient serves repeated preview requests for the same location from
// redis. The dispatch run does not go through it; its cache scope is one run
// and lives in the orchestrator.
type CachedClient struct {
	inner client
	cache cacheClient[models.LocationForecast]
	log   zerolog.Logger
}

func NewCachedClient(
	inner client,
	cache cacheClient[models.LocationForecast],
	logger zerolog.Logger,
) *CachedClient {
	logger = logger.With().Str("component", "CachedForecastClient").Logger()
	return &CachedClient{inner: inner, cache: cache, log: logger}
}

func (c *CachedClient) FetchByLocation(
	ctx context.Context,
	loc models.Location,
) (models.LocationForecast, error) {
	key := "forecast:" + loc.Key()

	if cached, err := c.cache.Get(ctx, key); err == nil {
		c.log.Debug().Str("location", loc.String()).Msg("forecast cache hit")
		return cached, nil
	}

	c.log.Debug().Str("location", loc.String()).Msg("forecast cache miss")
	fc, err := c.inner.FetchByLocation(ctx, loc)
	if err != nil {
		return models.LocationForecast{}, err
	}

	if err := c.cache.Set(ctx, key, fc); err != nil {
		c.log.Warn().Err(err).Str("location", loc.String()).Msg("failed to cache forecast")
	}

	return fc, nil
}
