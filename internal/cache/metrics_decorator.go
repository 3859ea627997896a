package cache

import (
	"context"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/metrics"
)

type cache[T any] interface {
	Set(ctx context.Context, key string, value T) error
	Get(ctx context.Context, key string) (T, error)
}

// MetricsDecorator instruments a cache with operation counters and latency.
type MetricsDecorator[T any] struct {
	next cache[T]
	m    *metrics.Metrics
}

func NewMetricsDecorator[T any](next cache[T], m *metrics.Metrics) *MetricsDecorator[T] {
	return &MetricsDecorator[T]{next: next, m: m}
}

func (d *MetricsDecorator[T]) Set(ctx context.Context, key string, value T) error {
	start := time.Now()
	err := d.next.Set(ctx, key, value)
	d.m.CacheOpDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	if err != nil {
		d.m.CacheOps.WithLabelValues("set", "error").Inc()
	} else {
		d.m.CacheOps.WithLabelValues("set", "ok").Inc()
	}
	return err
}

//nolint:ireturn
func (d *MetricsDecorator[T]) Get(ctx context.Context, key string) (T, error) {
	start := time.Now()
	value, err := d.next.Get(ctx, key)
	d.m.CacheOpDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	if err != nil {
		d.m.CacheOps.WithLabelValues("get", "miss").Inc()
	} else {
		d.m.CacheOps.WithLabelValues("get", "hit").Inc()
	}
	return value, err
}
