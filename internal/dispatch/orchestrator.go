package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/emailer"
	"github.com/bikeweatherapp/bike-weather-api/internal/metrics"
	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/bikeweatherapp/bike-weather-api/internal/services/forecast"
	"github.com/bikeweatherapp/bike-weather-api/internal/services/suitability"
	"github.com/rs/zerolog"
)

const defaultMaxConcurrentSends = 5

type subscriberRepository interface {
	ListActive(ctx context.Context) ([]models.Subscriber, error)
	UpdateLastSent(ctx context.Context, subscriberID int) error
}

type forecastClient interface {
	FetchByLocation(ctx context.Context, loc models.Location) (models.LocationForecast, error)
}

type digestRenderer interface {
	Render(sub models.Subscriber, fc models.LocationForecast,
		verdicts []models.SuitabilityVerdict) models.EmailMessage
}

type mailSender interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

// Config tunes one dispatch run.
type Config struct {
	MaxConcurrentSends int
	RetryDelay         time.Duration
	FetchTimeout       time.Duration
	SendTimeout        time.Duration
}

// Orchestrator executes the daily digest pipeline: list active subscribers,
// fetch one forecast per distinct location, render and send each subscriber's
// digest, and fold per-subscriber outcomes into a RunSummary. A failure for
// one subscriber or location never aborts the rest of the run.
type Orchestrator struct {
	repo      subscriberRepository
	forecasts forecastClient
	renderer  digestRenderer
	mailer    mailSender
	log       zerolog.Logger
	m         *metrics.Metrics
	cfg       Config
}

func New(
	repo subscriberRepository,
	forecasts forecastClient,
	renderer digestRenderer,
	mailer mailSender,
	logger zerolog.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Orchestrator {
	if cfg.MaxConcurrentSends <= 0 {
		cfg.MaxConcurrentSends = defaultMaxConcurrentSends
	}
	logger = logger.With().Str("component", "DispatchOrchestrator").Logger()
	return &Orchestrator{
		repo:      repo,
		forecasts: forecasts,
		renderer:  renderer,
		mailer:    mailer,
		log:       logger,
		m:         m,
		cfg:       cfg,
	}
}

type group struct {
	loc  models.Location
	subs []models.Subscriber
}

// Run executes one complete dispatch. The returned error is non-nil only when
// the subscriber list itself cannot be read; partial failures live in the
// summary.
func (o *Orchestrator) Run(ctx context.Context) (models.RunSummary, error) {
	start := time.Now()
	summary := models.RunSummary{StartedAt: start}

	subs, err := o.repo.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active subscribers: %w", err)
	}
	if len(subs) == 0 {
		summary.Duration = time.Since(start)
		o.log.Info().Msg("no active subscribers, nothing to dispatch")
		return summary, nil
	}

	results := make(chan models.DispatchResult, len(subs))
	sem := make(chan struct{}, o.cfg.MaxConcurrentSends)
	var wg sync.WaitGroup

	eligible := make([]models.Subscriber, 0, len(subs))
	for _, sub := range subs {
		if loc := models.NewLocation(sub.City, sub.State); loc.City == "" || loc.State == "" {
			o.log.Warn().Str("email", sub.Email).Msg("subscriber has no usable location, skipping")
			results <- models.DispatchResult{
				SubscriberID: sub.ID,
				Email:        sub.Email,
				Outcome:      models.OutcomeSkipped,
				Reason:       "invalid_location",
			}
			continue
		}
		eligible = append(eligible, sub)
	}

	for _, g := range groupByLocation(eligible) {
		fc, err := o.fetchWithRetry(ctx, g.loc)
		if err != nil {
			o.log.Error().Err(err).
				Str("location", g.loc.String()).
				Int("subscribers", len(g.subs)).
				Msg("forecast fetch failed, failing whole group")
			for _, sub := range g.subs {
				results <- failedResult(sub, err)
			}
			continue
		}

		// One evaluation per location: every subscriber in the group sees
		// the same interpretation of the same forecast.
		verdicts := suitability.EvaluateAll(fc.Days)

		for _, sub := range g.subs {
			wg.Add(1)
			go func(sub models.Subscriber) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				results <- o.sendOne(ctx, sub, fc, verdicts)
			}(sub)
		}
	}

	wg.Wait()
	close(results)
	for r := range results {
		summary.Record(r)
	}

	summary.Duration = time.Since(start)
	o.m.RecordRun(summary.Duration, summary.Sent, summary.Skipped, summary.Failed)
	o.log.Info().
		Int("sent", summary.Sent).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("dispatch run completed")
	return summary, nil
}

// SendTo fetches, renders and sends a single subscriber's digest. Used for
// the welcome digest right after signup.
func (o *Orchestrator) SendTo(ctx context.Context, sub models.Subscriber) error {
	fc, err := o.fetchWithRetry(ctx, models.NewLocation(sub.City, sub.State))
	if err != nil {
		return err
	}

	res := o.sendOne(ctx, sub, fc, suitability.EvaluateAll(fc.Days))
	if res.Outcome == models.OutcomeFailed {
		return res.Err
	}
	return nil
}

// fetchWithRetry attempts the upstream once, and once more after a fixed delay
// when the failure is transient.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, loc models.Location) (models.LocationForecast, error) {
	fc, err := o.fetchOnce(ctx, loc)
	if err == nil {
		o.m.ForecastFetches.WithLabelValues("ok").Inc()
		return fc, nil
	}
	if !forecast.IsTransient(err) {
		o.m.ForecastFetches.WithLabelValues(reason(err)).Inc()
		return models.LocationForecast{}, err
	}

	o.log.Warn().Err(err).
		Str("location", loc.String()).
		Dur("retry_delay", o.cfg.RetryDelay).
		Msg("transient forecast failure, retrying once")

	select {
	case <-time.After(o.cfg.RetryDelay):
	case <-ctx.Done():
		return models.LocationForecast{}, fmt.Errorf("%w: %v", forecast.ErrUpstreamUnavailable, ctx.Err())
	}

	fc, err = o.fetchOnce(ctx, loc)
	if err != nil {
		o.m.ForecastFetches.WithLabelValues(reason(err)).Inc()
		return models.LocationForecast{}, err
	}
	o.m.ForecastFetches.WithLabelValues("ok").Inc()
	return fc, nil
}

func (o *Orchestrator) fetchOnce(ctx context.Context, loc models.Location) (models.LocationForecast, error) {
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}
	fc, err := o.forecasts.FetchByLocation(ctx, loc)
	if errors.Is(err, context.DeadlineExceeded) {
		return models.LocationForecast{}, fmt.Errorf("%w: fetch timed out", forecast.ErrUpstreamUnavailable)
	}
	return fc, err
}

func (o *Orchestrator) sendOne(
	ctx context.Context,
	sub models.Subscriber,
	fc models.LocationForecast,
	verdicts []models.SuitabilityVerdict,
) models.DispatchResult {
	msg := o.renderer.Render(sub, fc, verdicts)

	sendCtx := ctx
	if o.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, o.cfg.SendTimeout)
		defer cancel()
	}

	if err := o.mailer.Send(sendCtx, msg); err != nil {
		o.log.Error().Err(err).
			Str("email", sub.Email).
			Msg("digest send failed")
		return failedResult(sub, err)
	}

	// Delivery already happened; a bookkeeping failure must not turn a sent
	// digest into a failed one.
	if err := o.repo.UpdateLastSent(ctx, sub.ID); err != nil {
		o.log.Warn().Err(err).
			Str("email", sub.Email).
			Msg("failed to record last_sent_at after delivery")
	}

	return models.DispatchResult{
		SubscriberID: sub.ID,
		Email:        sub.Email,
		Outcome:      models.OutcomeSent,
	}
}

// groupByLocation partitions subscribers by normalized location, preserving
// the store's stable ordering within and across groups.
func groupByLocation(subs []models.Subscriber) []group {
	index := map[string]int{}
	var groups []group
	for _, sub := range subs {
		loc := models.NewLocation(sub.City, sub.State)
		i, ok := index[loc.Key()]
		if !ok {
			i = len(groups)
			index[loc.Key()] = i
			groups = append(groups, group{loc: loc})
		}
		groups[i].subs = append(groups[i].subs, sub)
	}
	return groups
}

func failedResult(sub models.Subscriber, err error) models.DispatchResult {
	return models.DispatchResult{
		SubscriberID: sub.ID,
		Email:        sub.Email,
		Outcome:      models.OutcomeFailed,
		Reason:       reason(err),
		Err:          err,
	}
}

// reason maps an error to the stable failure kind reported in summaries.
func reason(err error) string {
	switch {
	case errors.Is(err, forecast.ErrLocationNotFound):
		return "location_not_found"
	case errors.Is(err, forecast.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, forecast.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, forecast.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, emailer.ErrTransport):
		return "transport_error"
	default:
		return "unknown"
	}
}
