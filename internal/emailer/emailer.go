package emailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/config"
	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// ErrTransport wraps every delivery failure so the dispatcher can record the
// kind without inspecting SMTP internals.
var ErrTransport = errors.New("mail transport failure")

// SMTPService delivers rendered digests over SMTP.
type SMTPService struct {
	dialer  *gomail.Dialer
	from    string
	replyTo string
	log     zerolog.Logger
}

func NewSMTPService(cfg *config.Config, logger zerolog.Logger) *SMTPService {
	logger = logger.With().Str("component", "SMTPService").Logger()
	return &SMTPService{
		dialer:  gomail.NewDialer(cfg.Email.Host, cfg.Email.Port, cfg.Email.User, cfg.Email.Password),
		from:    cfg.Email.From,
		replyTo: cfg.Email.ReplyTo,
		log:     logger,
	}
}

// Send delivers one message, honoring ctx cancellation around the blocking
// SMTP dial.
func (e *SMTPService) Send(ctx context.Context, msg models.EmailMessage) error {
	start := time.Now()
	e.log.Debug().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("sending email")

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if e.replyTo != "" {
		m.SetHeader("Reply-To", e.replyTo)
	}
	m.SetBody("text/html", msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- e.dialer.DialAndSend(m)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	duration := time.Since(start)
	if err != nil {
		e.log.Error().
			Err(err).
			Str("to", msg.To).
			Dur("duration", duration).
			Msg("email send failed")
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	e.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Dur("duration", duration).
		Msg("email sent")
	return nil
}
