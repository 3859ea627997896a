package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/sony/gobreaker"
)

const (
	timeInterval = time.Duration(30) * time.Second
	timeTimeOut  = time.Duration(15) * time.Second

	repeatNumber = 5
)

type client interface {
	FetchByLocation(ctx context.Context, loc models.Location) (models.LocationForecast, error)
}

// BreakerClient shields the upstream from hammering while it is down. An open
// breaker reports ErrUpstreamUnavailable so callers keep their retry taxonomy.
type BreakerClient struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	wrapped client
}

func NewBreakerClient(name string, wrapped client) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    timeInterval,
		Timeout:     timeTimeOut,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= repeatNumber
		},
	}
	return &BreakerClient{
		name:    name,
		cb:      gobreaker.NewCircuitBreaker(settings),
		wrapped: wrapped,
	}
}

func (b *BreakerClient) FetchByLocation(
	ctx context.Context,
	loc models.Location,
) (models.LocationForecast, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.FetchByLocation(ctx, loc)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.LocationForecast{},
				fmt.Errorf("%w: %s circuit open", ErrUpstreamUnavailable, b.name)
		}
		return models.LocationForecast{}, err
	}
	res, ok := result.(models.LocationForecast)
	if !ok {
		return models.LocationForecast{},
			fmt.Errorf("%w: %s returned unexpected result", ErrInvalidResponse, b.name)
	}
	return res, nil
}
