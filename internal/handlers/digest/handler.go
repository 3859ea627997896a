package digest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/bikeweatherapp/bike-weather-api/internal/services/forecast"
	"github.com/bikeweatherapp/bike-weather-api/internal/services/suitability"
	"github.com/gin-gonic/gin"
)

const previewTimeout = 20 * time.Second

type dispatcher interface {
	Run(ctx context.Context) (models.RunSummary, error)
}

type forecastClient interface {
	FetchByLocation(ctx context.Context, loc models.Location) (models.LocationForecast, error)
}

type digestRenderer interface {
	Render(sub models.Subscriber, fc models.LocationForecast,
		verdicts []models.SuitabilityVerdict) models.EmailMessage
}

type Handler struct {
	Dispatcher dispatcher
	Forecasts  forecastClient
	Renderer   digestRenderer
}

func NewHandler(d dispatcher, fc forecastClient, r digestRenderer) *Handler {
	return &Handler{Dispatcher: d, Forecasts: fc, Renderer: r}
}

// Dispatch
// @Summary Trigger a digest dispatch run
// @Description Runs the daily dispatch immediately and returns the run summary.
// @Tags digest
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401
// @Failure 500
// @Router /dispatch [post]
func (h *Handler) Dispatch(c *gin.Context) {
	summary, err := h.Dispatcher.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	failures := make([]gin.H, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failures = append(failures, gin.H{"email": f.Email, "reason": f.Reason})
	}

	c.JSON(http.StatusOK, gin.H{
		"sent":        summary.Sent,
		"skipped":     summary.Skipped,
		"failed":      summary.Failed,
		"duration_ms": summary.Duration.Milliseconds(),
		"failures":    failures,
	})
}

// Preview
// @Summary Preview the digest for a location
// @Description Renders the digest HTML for a city/state without touching the store or sending mail.
// @Tags digest
// @Produce html
// @Param city query string true "City"
// @Param state query string true "Two-letter state code"
// @Success 200
// @Failure 400
// @Failure 404
// @Failure 502
// @Router /preview [get]
func (h *Handler) Preview(c *gin.Context) {
	city := c.Query("city")
	state := c.Query("state")
	if city == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "city and state query parameters are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), previewTimeout)
	defer cancel()

	loc := models.NewLocation(city, state)
	fc, err := h.Forecasts.FetchByLocation(ctx, loc)
	switch {
	case errors.Is(err, forecast.ErrLocationNotFound):
		c.String(http.StatusNotFound, "Location not found")
		return
	case err != nil:
		c.String(http.StatusBadGateway, "Forecast unavailable, try again later")
		return
	}

	// Same pipeline the dispatcher uses, with a throwaway subscriber identity.
	previewSub := models.Subscriber{
		Email:            "preview@localhost",
		City:             loc.City,
		State:            loc.State,
		UnsubscribeToken: "preview",
	}
	msg := h.Renderer.Render(previewSub, fc, suitability.EvaluateAll(fc.Days))

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(msg.Body))
}
