package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/dispatch"
	"github.com/bikeweatherapp/bike-weather-api/internal/emailer"
	"github.com/bikeweatherapp/bike-weather-api/internal/metrics"
	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/bikeweatherapp/bike-weather-api/internal/services/forecast"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type repoMock struct{ mock.Mock }

func (m *repoMock) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Subscriber), args.Error(1)
}

func (m *repoMock) UpdateLastSent(ctx context.Context, subscriberID int) error {
	return m.Called(ctx, subscriberID).Error(0)
}

type forecastMock struct{ mock.Mock }

func (m *forecastMock) FetchByLocation(
	ctx context.Context,
	loc models.Location,
) (models.LocationForecast, error) {
	args := m.Called(ctx, loc)
	return args.Get(0).(models.LocationForecast), args.Error(1)
}

type mailerMock struct{ mock.Mock }

func (m *mailerMock) Send(ctx context.Context, msg models.EmailMessage) error {
	return m.Called(ctx, msg).Error(0)
}

// stubRenderer keeps the pipeline tests focused on orchestration rather than
// template output.
type stubRenderer struct{}

func (stubRenderer) Render(
	sub models.Subscriber,
	_ models.LocationForecast,
	_ []models.SuitabilityVerdict,
) models.EmailMessage {
	return models.EmailMessage{To: sub.Email, Subject: "digest", Body: "body"}
}

func newOrchestrator(repo *repoMock, fcs *forecastMock, mailer *mailerMock) *dispatch.Orchestrator {
	return dispatch.New(
		repo, fcs, stubRenderer{}, mailer,
		zerolog.Nop(), metrics.New("test", nil, "test"),
		dispatch.Config{MaxConcurrentSends: 2, RetryDelay: time.Millisecond},
	)
}

func forecastFor(loc models.Location) models.LocationForecast {
	days := make([]models.DayForecast, models.ForecastDays)
	for i := range days {
		days[i] = models.DayForecast{
			Date:      time.Date(2026, 8, 24+i, 0, 0, 0, 0, time.UTC),
			HighTemp:  70,
			LowTemp:   55,
			Condition: "Clear",
		}
	}
	return models.LocationForecast{Location: loc, Days: days, FetchedAt: time.Now()}
}

func toEmail(email string) interface{} {
	return mock.MatchedBy(func(msg models.EmailMessage) bool { return msg.To == email })
}

var (
	boston  = models.NewLocation("Boston", "MA")
	seattle = models.NewLocation("Seattle", "WA")
)

func TestRunFetchesOncePerLocationAndIsolatesFailures(t *testing.T) {
	repo := &repoMock{}
	fcs := &forecastMock{}
	mailer := &mailerMock{}

	subs := []models.Subscriber{
		{ID: 1, Email: "alice@example.com", City: "Boston", State: "MA"},
		{ID: 2, Email: "bob@example.com", City: "boston", State: "ma"},
		{ID: 3, Email: "carol@example.com", City: "Seattle", State: "WA"},
	}
	repo.On("ListActive", mock.Anything).Return(subs, nil)
	repo.On("UpdateLastSent", mock.Anything, mock.Anything).Return(nil)

	// Boston serves two subscribers from a single fetch; Seattle stays down
	// through the retry.
	fcs.On("FetchByLocation", mock.Anything, boston).Return(forecastFor(boston), nil).Once()
	fcs.On("FetchByLocation", mock.Anything, seattle).
		Return(models.LocationForecast{}, forecast.ErrUpstreamUnavailable).Twice()

	mailer.On("Send", mock.Anything, toEmail("alice@example.com")).Return(nil)
	mailer.On("Send", mock.Anything, toEmail("bob@example.com")).Return(nil)

	summary, err := newOrchestrator(repo, fcs, mailer).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "carol@example.com", summary.Failures[0].Email)
	assert.Equal(t, "upstream_unavailable", summary.Failures[0].Reason)

	fcs.AssertExpectations(t)
	mailer.AssertExpectations(t)
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestRunEmptySubscriberList(t *testing.T) {
	repo := &repoMock{}
	fcs := &forecastMock{}
	mailer := &mailerMock{}
	repo.On("ListActive", mock.Anything).Return([]models.Subscriber{}, nil)

	summary, err := newOrchestrator(repo, fcs, mailer).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())
	fcs.AssertNotCalled(t, "FetchByLocation", mock.Anything, mock.Anything)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRunListFailureIsFatal(t *testing.T) {
	repo := &repoMock{}
	repo.On("ListActive", mock.Anything).Return(nil, assert.AnError)

	_, err := newOrchestrator(repo, &forecastMock{}, &mailerMock{}).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRunRetriesTransientFetchOnce(t *testing.T) {
	repo := &repoMock{}
	fcs := &forecastMock{}
	mailer := &mailerMock{}

	repo.On("ListActive", mock.Anything).Return([]models.Subscriber{
		{ID: 1, Email: "alice@example.com", City: "Boston", State: "MA"},
	}, nil)
	repo.On("UpdateLastSent", mock.Anything, 1).Return(nil)

	fcs.On("FetchByLocation", mock.Anything, boston).
		Return(models.LocationForecast{}, forecast.ErrRateLimited).Once()
	fcs.On("FetchByLocation", mock.Anything, boston).
		Return(forecastFor(boston), nil).Once()
	mailer.On("Send", mock.Anything, toEmail("alice@example.com")).Return(nil)

	summary, err := newOrchestrator(repo, fcs, mailer).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	fcs.AssertExpectations(t)
}

func TestRunDoesNotRetryPermanentFetchFailure(t *testing.T) {
	repo := &repoMock{}
	fcs := &forecastMock{}
	mailer := &mailerMock{}

	repo.On("ListActive", mock.Anything).Return([]models.Subscriber{
		{ID: 1, Email: "alice@example.com", City: "Atlantis", State: "ZZ"},
	}, nil)

	fcs.On("FetchByLocation", mock.Anything, mock.Anything).
		Return(models.LocationForecast{}, forecast.ErrLocationNotFound)

	summary, err := newOrchestrator(repo, fcs, mailer).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "location_not_found", summary.Failures[0].Reason)
	fcs.AssertNumberOfCalls(t, "FetchByLocation", 1)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRunSendFailureDoesNotAffectOthers(t *testing.T) {
	repo := &repoMock{}
	fcs := &forecastMock{}
	mailer := &mailerMock{}

	repo.On("ListActive", mock.Anything).Return([]models.Subscriber{
		{ID: 1, Email: "alice@example.com", City: "Boston", State: "MA"},
		{ID: 2, Email: "bob@example.com", City: "Boston", State: "MA"},
	}, nil)
	repo.On("UpdateLastSent", mock.Anything, 2).Return(nil)

	fcs.On("FetchByLocation", mock.Anything, boston).Return(forecastFor(boston), nil).Once()
	mailer.On("Send", mock.Anything, toEmail("alice@example.com")).Return(emailer.ErrTransport)
	mailer.On("Send", mock.Anything, toEmail("bob@example.com")).Return(nil)

	summary, err := newOrchestrator(repo, fcs, mailer).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "alice@example.com", summary.Failures[0].Email)
	assert.Equal(t, "transport_error", summary.Failures[0].Reason)
}

func TestRunSkipsSubscribersWithoutLocation(t *testing.T) {
	repo := &repoMock{}
	fcs := &forecastMock{}
	mailer := &mailerMock{}

	repo.On("ListActive", mock.Anything).Return([]models.Subscriber{
		{ID: 1, Email: "alice@example.com", City: "  ", State: ""},
		{ID: 2, Email: "bob@example.com", City: "Boston", State: "MA"},
	}, nil)
	repo.On("UpdateLastSent", mock.Anything, 2).Return(nil)

	fcs.On("FetchByLocation", mock.Anything, boston).Return(forecastFor(boston), nil).Once()
	mailer.On("Send", mock.Anything, toEmail("bob@example.com")).Return(nil)

	summary, err := newOrchestrator(repo, fcs, mailer).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	mailer.AssertNumberOfCalls(t, "Send", 1)
}

func TestRunBookkeepingFailureStillCountsAsSent(t *testing.T) {
	repo := &repoMock{}
	fcs := &forecastMock{}
	mailer := &mailerMock{}

	repo.On("ListActive", mock.Anything).Return([]models.Subscriber{
		{ID: 1, Email: "alice@example.com", City: "Boston", State: "MA"},
	}, nil)
	repo.On("UpdateLastSent", mock.Anything, 1).Return(assert.AnError)

	fcs.On("FetchByLocation", mock.Anything, boston).Return(forecastFor(boston), nil).Once()
	mailer.On("Send", mock.Anything, toEmail("alice@example.com")).Return(nil)

	summary, err := newOrchestrator(repo, fcs, mailer).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 0, summary.Failed)
}

func TestSendTo(t *testing.T) {
	repo := &repoMock{}
	fcs := &forecastMock{}
	mailer := &mailerMock{}

	sub := models.Subscriber{ID: 7, Email: "alice@example.com", City: "Boston", State: "MA"}
	repo.On("UpdateLastSent", mock.Anything, 7).Return(nil)
	fcs.On("FetchByLocation", mock.Anything, boston).Return(forecastFor(boston), nil).Once()
	mailer.On("Send", mock.Anything, toEmail("alice@example.com")).Return(nil)

	err := newOrchestrator(repo, fcs, mailer).SendTo(context.Background(), sub)

	require.NoError(t, err)
	mailer.AssertExpectations(t)
}

func TestSendToSurfacesFetchError(t *testing.T) {
	fcs := &forecastMock{}
	fcs.On("FetchByLocation", mock.Anything, mock.Anything).
		Return(models.LocationForecast{}, forecast.ErrLocationNotFound)

	err := newOrchestrator(&repoMock{}, fcs, &mailerMock{}).
		SendTo(context.Background(), models.Subscriber{Email: "a@b.c", City: "X", State: "Y"})

	assert.ErrorIs(t, err, forecast.ErrLocationNotFound)
}
