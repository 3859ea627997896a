package dispatch

import (
	"context"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type runner interface {
	Run(ctx context.Context) (models.RunSummary, error)
}

// Scheduler triggers the daily dispatch run on a cron spec. It guarantees the
// orchestrator's single-run assumption by never scheduling overlapping runs.
type Scheduler struct {
	orch   runner
	cron   *cron.Cron
	cancel context.CancelFunc
	log    zerolog.Logger
	spec   string
}

func NewScheduler(orch runner, spec string, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "DispatchScheduler").Logger()
	return &Scheduler{
		orch: orch,
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  logger,
		spec: spec,
	}
}

// Start schedules the daily job.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if _, err := s.cron.AddFunc(s.spec, func() {
		summary, err := s.orch.Run(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("scheduled dispatch run failed")
			return
		}
		s.log.Info().
			Int("sent", summary.Sent).
			Int("skipped", summary.Skipped).
			Int("failed", summary.Failed).
			Msg("scheduled dispatch run finished")
	}); err != nil {
		cancel()
		return err
	}

	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("dispatch scheduler started")
	return nil
}

// Stop cancels the run context and waits for any in-flight job.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info().Msg("dispatch scheduler stopped")
}
