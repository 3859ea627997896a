package digest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	handler "github.com/bikeweatherapp/bike-weather-api/internal/handlers/digest"
	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/bikeweatherapp/bike-weather-api/internal/services/forecast"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type dispatcherMock struct{ mock.Mock }

func (m *dispatcherMock) Run(ctx context.Context) (models.RunSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.RunSummary), args.Error(1)
}

type forecastMock struct{ mock.Mock }

func (m *forecastMock) FetchByLocation(
	ctx context.Context,
	loc models.Location,
) (models.LocationForecast, error) {
	args := m.Called(ctx, loc)
	return args.Get(0).(models.LocationForecast), args.Error(1)
}

type stubRenderer struct{}

func (stubRenderer) Render(
	sub models.Subscriber,
	fc models.LocationForecast,
	_ []models.SuitabilityVerdict,
) models.EmailMessage {
	return models.EmailMessage{
		To:      sub.Email,
		Subject: "digest",
		Body:    "<html>digest for " + fc.Location.City + "</html>",
	}
}

func newRouter(d *dispatcherMock, fcs *forecastMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handler.NewHandler(d, fcs, stubRenderer{})
	r.POST("/api/dispatch", h.Dispatch)
	r.GET("/api/preview", h.Preview)
	return r
}

func TestDispatchReturnsSummary(t *testing.T) {
	d := &dispatcherMock{}
	d.On("Run", mock.Anything).Return(models.RunSummary{
		Sent:     3,
		Failed:   1,
		Duration: 1200 * time.Millisecond,
		Failures: []models.DispatchResult{
			{Email: "carol@example.com", Reason: "upstream_unavailable"},
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/dispatch", nil)
	w := httptest.NewRecorder()
	newRouter(d, &forecastMock{}).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sent       int `json:"sent"`
		Skipped    int `json:"skipped"`
		Failed     int `json:"failed"`
		DurationMS int `json:"duration_ms"`
		Failures   []struct {
			Email  string `json:"email"`
			Reason string `json:"reason"`
		} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Sent)
	assert.Equal(t, 1, body.Failed)
	assert.Equal(t, 1200, body.DurationMS)
	require.Len(t, body.Failures, 1)
	assert.Equal(t, "carol@example.com", body.Failures[0].Email)
	assert.Equal(t, "upstream_unavailable", body.Failures[0].Reason)
}

func TestDispatchRunFailure(t *testing.T) {
	d := &dispatcherMock{}
	d.On("Run", mock.Anything).Return(models.RunSummary{}, assert.AnError)

	req := httptest.NewRequest(http.MethodPost, "/api/dispatch", nil)
	w := httptest.NewRecorder()
	newRouter(d, &forecastMock{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPreviewRendersDigest(t *testing.T) {
	fcs := &forecastMock{}
	loc := models.NewLocation("Boston", "MA")
	fcs.On("FetchByLocation", mock.Anything, loc).
		Return(models.LocationForecast{Location: loc, FetchedAt: time.Now()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/preview?city=Boston&state=MA", nil)
	w := httptest.NewRecorder()
	newRouter(&dispatcherMock{}, fcs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "digest for Boston")
}

func TestPreviewRequiresCityAndState(t *testing.T) {
	fcs := &forecastMock{}

	req := httptest.NewRequest(http.MethodGet, "/api/preview?city=Boston", nil)
	w := httptest.NewRecorder()
	newRouter(&dispatcherMock{}, fcs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	fcs.AssertNotCalled(t, "FetchByLocation", mock.Anything, mock.Anything)
}

func TestPreviewUnknownLocation(t *testing.T) {
	fcs := &forecastMock{}
	fcs.On("FetchByLocation", mock.Anything, mock.Anything).
		Return(models.LocationForecast{}, forecast.ErrLocationNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/preview?city=Atlantis&state=ZZ", nil)
	w := httptest.NewRecorder()
	newRouter(&dispatcherMock{}, fcs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreviewUpstreamFailure(t *testing.T) {
	fcs := &forecastMock{}
	fcs.On("FetchByLocation", mock.Anything, mock.Anything).
		Return(models.LocationForecast{}, forecast.ErrUpstreamUnavailable)

	req := httptest.NewRequest(http.MethodGet, "/api/preview?city=Boston&state=MA", nil)
	w := httptest.NewRecorder()
	newRouter(&dispatcherMock{}, fcs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
