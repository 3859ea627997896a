package subscribers

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/rs/zerolog"
)

const tokenBytes = 16

type subscriberRepository interface {
	Create(ctx context.Context, email, city, state, token string) (models.Subscriber, error)
	Deactivate(ctx context.Context, token string) (models.Subscriber, error)
}

type welcomeDigestSender interface {
	SendTo(ctx context.Context, sub models.Subscriber) error
}

// Service handles the subscriber lifecycle: signup with a fresh unsubscribe
// token plus a best-effort welcome digest, and idempotent unsubscribe.
type Service struct {
	repo    subscriberRepository
	digests welcomeDigestSender
	log     zerolog.Logger
}

func NewService(repo subscriberRepository, digests welcomeDigestSender, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "SubscriberService").Logger()
	return &Service{repo: repo, digests: digests, log: logger}
}

// Signup creates the subscriber and sends their first digest. A failed welcome
// send never fails the signup; the daily run covers them tomorrow.
func (s *Service) Signup(ctx context.Context, data models.SignupData) (models.Subscriber, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return models.Subscriber{}, err
	}
	token := hex.EncodeToString(buf)

	sub, err := s.repo.Create(ctx, data.Email, data.City, data.State, token)
	if err != nil {
		return models.Subscriber{}, err
	}

	if err := s.digests.SendTo(ctx, sub); err != nil {
		s.log.Warn().Err(err).
			Str("email", sub.Email).
			Msg("welcome digest failed, subscriber still created")
	}

	return sub, nil
}

// Unsubscribe deactivates the token's subscriber. Safe to call repeatedly.
func (s *Service) Unsubscribe(ctx context.Context, token string) (models.Subscriber, error) {
	return s.repo.Deactivate(ctx, token)
}
