package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/metrics"
	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/rs/zerolog"
)

var (
	ErrDuplicateEmail  = errors.New("email already subscribed")
	ErrInvalidLocation = errors.New("city and state are required")
	ErrUnknownToken    = errors.New("unknown unsubscribe token")
)

// SubscriberRepository is the single source of truth for who receives mail.
// Rows are soft-deleted: Deactivate flips active and keeps the token so old
// unsubscribe links stay idempotent.
type SubscriberRepository struct {
	DB  *sql.DB
	log zerolog.Logger
	m   *metrics.Metrics
}

func NewSubscriberRepository(
	db *sql.DB,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *SubscriberRepository {
	logger = logger.With().Str("component", "SubscriberRepository").Logger()
	return &SubscriberRepository{DB: db, log: logger, m: m}
}

const subscriberColumns = `id, email, city, state, active, unsubscribe_token, created_at, last_sent_at`

// Create inserts an active subscriber. The email is lowercased before the
// case-insensitive duplicate check against other active subscribers.
func (r *SubscriberRepository) Create(
	ctx context.Context,
	email, city, state, token string,
) (models.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	city = strings.TrimSpace(city)
	state = strings.TrimSpace(state)

	if city == "" || state == "" {
		r.m.BusinessErrors.WithLabelValues("invalid_location", "warning").Inc()
		return models.Subscriber{}, ErrInvalidLocation
	}

	var cnt int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscribers WHERE email = ? AND active = 1`,
		email,
	).Scan(&cnt)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).Msg("failed to query subscriber count")
		r.m.TechnicalErrors.WithLabelValues("db_query_error", "critical").Inc()
		return models.Subscriber{}, err
	}
	if cnt > 0 {
		r.log.Warn().Ctx(ctx).
			Str("email", email).
			Msg("subscriber already exists, abort create")
		r.m.BusinessErrors.WithLabelValues("duplicate_email", "warning").Inc()
		return models.Subscriber{}, ErrDuplicateEmail
	}

	now := time.Now()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO subscribers
		    (email, city, state, active, unsubscribe_token, created_at, last_sent_at)
		 VALUES (?, ?, ?, 1, ?, ?, null)`,
		email, city, state, token, now,
	)
	if err != nil {
		// The partial unique index catches signups that raced past the
		// count check above.
		if isDuplicateEmail(err) {
			r.m.BusinessErrors.WithLabelValues("duplicate_email", "warning").Inc()
			return models.Subscriber{}, ErrDuplicateEmail
		}
		r.log.Error().Err(err).Ctx(ctx).Msg("failed to insert subscriber")
		r.m.TechnicalErrors.WithLabelValues("db_insert_error", "critical").Inc()
		return models.Subscriber{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).Msg("failed to read inserted subscriber id")
		r.m.TechnicalErrors.WithLabelValues("db_insert_error", "critical").Inc()
		return models.Subscriber{}, err
	}

	r.log.Info().Ctx(ctx).
		Str("email", email).
		Str("city", city).
		Str("state", state).
		Msg("subscriber created")
	r.m.SubscribersCreated.Inc()

	return models.Subscriber{
		ID:               int(id),
		Email:            email,
		City:             city,
		State:            state,
		Active:           true,
		UnsubscribeToken: token,
		CreatedAt:        now,
	}, nil
}

// ListActive returns all active subscribers ordered by id, so repeated runs
// see them in the same order.
func (r *SubscriberRepository) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE active = 1 ORDER BY id`,
	)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).Msg("failed to query active subscribers")
		r.m.TechnicalErrors.WithLabelValues("db_query_error", "critical").Inc()
		return nil, err
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			r.log.Error().Err(err).Ctx(ctx).Msg("failed to close rows after query")
			r.m.TechnicalErrors.WithLabelValues("db_rows_close_error", "critical").Inc()
		}
	}(rows)

	var subs []models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			r.log.Error().Err(err).Ctx(ctx).Msg("failed to scan subscriber row")
			r.m.TechnicalErrors.WithLabelValues("db_scan_error", "critical").Inc()
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		r.log.Error().Err(err).Ctx(ctx).Msg("row iteration error")
		r.m.TechnicalErrors.WithLabelValues("db_rows_error", "critical").Inc()
		return nil, err
	}

	r.log.Debug().Ctx(ctx).Int("count", len(subs)).Msg("listed active subscribers")
	return subs, nil
}

// Deactivate flips the active flag for the token's subscriber. Deactivating an
// already-inactive subscriber succeeds and returns the existing record;
// an unknown token is ErrUnknownToken.
func (r *SubscriberRepository) Deactivate(ctx context.Context, token string) (models.Subscriber, error) {
	sub, err := r.getByToken(ctx, token)
	if err != nil {
		return models.Subscriber{}, err
	}
	if !sub.Active {
		r.log.Debug().Ctx(ctx).Str("email", sub.Email).Msg("subscriber already inactive")
		return sub, nil
	}

	if _, err := r.DB.ExecContext(ctx,
		`UPDATE subscribers SET active = 0 WHERE unsubscribe_token = ?`, token,
	); err != nil {
		r.log.Error().Err(err).Ctx(ctx).Msg("failed to deactivate subscriber")
		r.m.TechnicalErrors.WithLabelValues("db_update_error", "critical").Inc()
		return models.Subscriber{}, err
	}

	sub.Active = false
	r.log.Info().Ctx(ctx).Str("email", sub.Email).Msg("subscriber deactivated")
	r.m.SubscribersDeactivated.Inc()
	return sub, nil
}

// Reactivate re-enables a previously deactivated subscriber.
func (r *SubscriberRepository) Reactivate(ctx context.Context, token string) (models.Subscriber, error) {
	sub, err := r.getByToken(ctx, token)
	if err != nil {
		return models.Subscriber{}, err
	}
	if sub.Active {
		return sub, nil
	}

	if _, err := r.DB.ExecContext(ctx,
		`UPDATE subscribers SET active = 1 WHERE unsubscribe_token = ?`, token,
	); err != nil {
		r.log.Error().Err(err).Ctx(ctx).Msg("failed to reactivate subscriber")
		r.m.TechnicalErrors.WithLabelValues("db_update_error", "critical").Inc()
		return models.Subscriber{}, err
	}

	sub.Active = true
	r.log.Info().Ctx(ctx).Str("email", sub.Email).Msg("subscriber reactivated")
	return sub, nil
}

// UpdateLastSent records a successful digest delivery. Informational only.
func (r *SubscriberRepository) UpdateLastSent(ctx context.Context, subscriberID int) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE subscribers SET last_sent_at = ? WHERE id = ?`, time.Now(), subscriberID,
	)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).
			Int("subscriber_id", subscriberID).
			Msg("failed to update last_sent_at")
		r.m.TechnicalErrors.WithLabelValues("db_update_error", "critical").Inc()
	}
	return err
}

func (r *SubscriberRepository) getByToken(ctx context.Context, token string) (models.Subscriber, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE unsubscribe_token = ?`, token,
	)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		r.m.BusinessErrors.WithLabelValues("unknown_token", "warning").Inc()
		return models.Subscriber{}, ErrUnknownToken
	}
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).Msg("failed to query subscriber by token")
		r.m.TechnicalErrors.WithLabelValues("db_query_error", "critical").Inc()
		return models.Subscriber{}, err
	}
	return sub, nil
}

// isDuplicateEmail recognizes a violation of the one-active-row-per-email
// index without tying the repository to the driver's error types.
func isDuplicateEmail(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: subscribers.email")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (models.Subscriber, error) {
	var sub models.Subscriber
	var active int
	var lastSent sql.NullTime

	err := row.Scan(&sub.ID, &sub.Email, &sub.City, &sub.State,
		&active, &sub.UnsubscribeToken, &sub.CreatedAt, &lastSent)
	if err != nil {
		return models.Subscriber{}, err
	}

	sub.Active = active == 1
	if lastSent.Valid {
		sub.LastSentAt = &lastSent.Time
	}
	return sub, nil
}
