package admin

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/gin-gonic/gin"
)

const timeoutDuration = 10 * time.Second

type subscriberLister interface {
	ListActive(ctx context.Context) ([]models.Subscriber, error)
}

type Handler struct {
	Repo subscriberLister
}

func NewHandler(repo subscriberLister) *Handler {
	return &Handler{Repo: repo}
}

// KeyAuth guards admin routes with a shared secret passed in X-Admin-Key.
func KeyAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Admin-Key")
		if key == "" {
			key = c.Query("key")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// ListSubscribers
// @Summary List active subscribers
// @Description Read-only projection of the active subscriber list. Tokens are never included.
// @Tags admin
// @Produce json
// @Success 200 {array} map[string]interface{}
// @Failure 401
// @Failure 500
// @Router /admin/subscribers [get]
func (h *Handler) ListSubscribers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
	defer cancel()

	subs, err := h.Repo.ListActive(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	out := make([]gin.H, 0, len(subs))
	for _, sub := range subs {
		out = append(out, gin.H{
			"email":      sub.Email,
			"city":       sub.City,
			"state":      sub.State,
			"active":     sub.Active,
			"created_at": sub.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
