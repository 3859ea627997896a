package subscription

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/bikeweatherapp/bike-weather-api/internal/repository/sqlite"
	"github.com/gin-gonic/gin"
)

const timeoutDuration = 10 * time.Second

type subscriberService interface {
	Signup(ctx context.Context, data models.SignupData) (models.Subscriber, error)
	Unsubscribe(ctx context.Context, token string) (models.Subscriber, error)
}

type Handler struct {
	Service subscriberService
}

func NewHandler(svc subscriberService) *Handler {
	return &Handler{Service: svc}
}

// Subscribe
// @Summary Sign up for daily bike weather digests
// @Description Registers an email address and a city/state to receive a daily digest.
// @Tags subscription
// @Accept application/x-www-form-urlencoded
// @Param email formData string true "Email address to subscribe"
// @Param city formData string true "City"
// @Param state formData string true "Two-letter state code"
// @Success 200
// @Failure 400
// @Failure 500
// @Router /subscribe [post]
func (h *Handler) Subscribe(c *gin.Context) {
	var data models.SignupData
	if err := c.ShouldBind(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
	defer cancel()

	sub, err := h.Service.Signup(ctx, data)
	switch {
	case errors.Is(err, sqlite.ErrDuplicateEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "You're already subscribed! Check your inbox for your daily reports."})
		return
	case errors.Is(err, sqlite.ErrInvalidLocation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not use that location. Please check the city and state."})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Subscribed successfully",
		"city":    sub.City,
		"state":   sub.State,
	})
}

// Unsubscribe
// @Summary Unsubscribe from digests
// @Description Deactivates the subscriber behind the token. Safe to call more than once.
// @Tags subscription
// @Produce html
// @Param token path string true "Unsubscribe token"
// @Success 200
// @Failure 404
// @Failure 500
// @Router /unsubscribe/{token} [get]
func (h *Handler) Unsubscribe(c *gin.Context) {
	token := c.Param("token")

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
	defer cancel()

	sub, err := h.Service.Unsubscribe(ctx, token)
	switch {
	case errors.Is(err, sqlite.ErrUnknownToken):
		c.String(http.StatusNotFound, "Invalid unsubscribe link.")
		return
	case err != nil:
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	c.HTML(http.StatusOK, "unsubscribed.html", gin.H{"Email": sub.Email})
}
