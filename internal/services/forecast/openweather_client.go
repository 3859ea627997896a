package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/rs/zerolog"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type geoResponse []struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type forecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			FeelsLike float64 `json:"feels_like"`
		} `json:"main"`
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Pop float64 `json:"pop"`
	} `json:"list"`
	City struct {
		Timezone int `json:"timezone"`
	} `json:"city"`
}

// OpenWeatherClient resolves a (city, state) pair through the OpenWeather geo
// API and normalizes the 5-day/3-hour forecast into daily entries. It does no
// caching; cache scope belongs to the caller.
type OpenWeatherClient struct {
	apiKey      string
	geoURL      string
	forecastURL string
	client      HTTPClient
	log         zerolog.Logger
}

func NewOpenWeatherClient(
	apiKey, geoURL, forecastURL string,
	httpClient HTTPClient,
	logger zerolog.Logger,
) *OpenWeatherClient {
	logger = logger.With().Str("component", "OpenWeatherClient").Logger()
	return &OpenWeatherClient{
		apiKey:      apiKey,
		geoURL:      geoURL,
		forecastURL: forecastURL,
		client:      httpClient,
		log:         logger,
	}
}

// FetchByLocation returns the normalized forecast or one of the package's
// error kinds. Upstream days that are absent come back with Missing set so the
// result always holds models.ForecastDays entries.
func (c *OpenWeatherClient) FetchByLocation(
	ctx context.Context,
	loc models.Location,
) (models.LocationForecast, error) {
	lat, lon, err := c.geocode(ctx, loc)
	if err != nil {
		return models.LocationForecast{}, err
	}

	raw, err := c.fetchForecast(ctx, lat, lon)
	if err != nil {
		return models.LocationForecast{}, err
	}

	days, err := aggregateDays(raw)
	if err != nil {
		return models.LocationForecast{}, err
	}

	return models.LocationForecast{
		Location:  loc,
		Days:      days,
		FetchedAt: time.Now(),
	}, nil
}

func (c *OpenWeatherClient) geocode(ctx context.Context, loc models.Location) (float64, float64, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("%s,%s,US", loc.City, loc.State))
	query.Set("limit", "1")
	query.Set("appid", c.apiKey)

	var geo geoResponse
	if err := c.getJSON(ctx, c.geoURL+"?"+query.Encode(), &geo); err != nil {
		return 0, 0, err
	}
	if len(geo) == 0 {
		c.log.Warn().Str("location", loc.String()).Msg("geocoding returned no results")
		return 0, 0, fmt.Errorf("%w: %s", ErrLocationNotFound, loc)
	}
	return geo[0].Lat, geo[0].Lon, nil
}

func (c *OpenWeatherClient) fetchForecast(ctx context.Context, lat, lon float64) (forecastResponse, error) {
	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lon))
	query.Set("units", "imperial")
	query.Set("appid", c.apiKey)

	var raw forecastResponse
	if err := c.getJSON(ctx, c.forecastURL+"?"+query.Encode(), &raw); err != nil {
		return forecastResponse{}, err
	}
	return raw, nil
}

func (c *OpenWeatherClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Error().Err(err).Msg("failed to close response body")
		}
	}(resp.Body)

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound || code == http.StatusBadRequest:
		return fmt.Errorf("%w: upstream status %d", ErrLocationNotFound, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: upstream status %d", ErrRateLimited, code)
	default:
		return fmt.Errorf("%w: upstream status %d", ErrUpstreamUnavailable, code)
	}
}

// aggregateDays folds the 3-hour entries into consecutive daily forecasts
// anchored on the first upstream entry's local date.
func aggregateDays(raw forecastResponse) ([]models.DayForecast, error) {
	if len(raw.List) == 0 {
		return nil, fmt.Errorf("%w: empty forecast list", ErrInvalidResponse)
	}

	tz := time.FixedZone("upstream", raw.City.Timezone)

	type bucket struct {
		high, low, pop, wind float64
		conditions           map[string]int
		seen                 bool
	}
	buckets := map[string]*bucket{}

	for _, item := range raw.List {
		local := time.Unix(item.Dt, 0).In(tz)
		key := local.Format("2006-01-02")

		b, ok := buckets[key]
		if !ok {
			b = &bucket{conditions: map[string]int{}}
			buckets[key] = b
		}

		feels := item.Main.FeelsLike
		if !b.seen {
			b.high, b.low = feels, feels
			b.seen = true
		} else {
			if feels > b.high {
				b.high = feels
			}
			if feels < b.low {
				b.low = feels
			}
		}
		if item.Pop > b.pop {
			b.pop = item.Pop
		}
		if item.Wind.Speed > b.wind {
			b.wind = item.Wind.Speed
		}
		if len(item.Weather) > 0 {
			b.conditions[item.Weather[0].Main]++
		}
	}

	first := time.Unix(raw.List[0].Dt, 0).In(tz)
	start := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, tz)

	days := make([]models.DayForecast, 0, models.ForecastDays)
	for i := 0; i < models.ForecastDays; i++ {
		date := start.AddDate(0, 0, i)
		b, ok := buckets[date.Format("2006-01-02")]
		if !ok {
			days = append(days, models.DayForecast{Date: date, Missing: true})
			continue
		}
		days = append(days, models.DayForecast{
			Date:       date,
			HighTemp:   b.high,
			LowTemp:    b.low,
			PrecipProb: b.pop,
			WindSpeed:  b.wind,
			Condition:  dominantCondition(b.conditions),
		})
	}
	return days, nil
}

func dominantCondition(counts map[string]int) string {
	best, bestCount := "", 0
	for cond, n := range counts {
		if n > bestCount || (n == bestCount && cond < best) {
			best, bestCount = cond, n
		}
	}
	return best
}
