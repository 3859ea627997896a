package digest

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/rs/zerolog"
)

// Renderer turns a forecast plus its verdicts into a personalized digest email.
// Render is total: a day without data renders as unavailable instead of
// blocking the other days or the run.
type Renderer struct {
	tmpl    *template.Template
	baseURL string
	log     zerolog.Logger
}

func NewRenderer(templatesDir, baseURL string, logger zerolog.Logger) (*Renderer, error) {
	tmpl, err := template.ParseFiles(templatesDir + "/digest_email.html")
	if err != nil {
		return nil, fmt.Errorf("parse digest template: %w", err)
	}
	logger = logger.With().Str("component", "DigestRenderer").Logger()
	return &Renderer{tmpl: tmpl, baseURL: baseURL, log: logger}, nil
}

type dayView struct {
	DayName   string
	Date      string
	Verdict   string
	Rationale string
	HighTemp  string
	LowTemp   string
	Condition string
	Missing   bool
	Good      bool
}

type bodyData struct {
	City           string
	State          string
	ReportDate     string
	Days           []dayView
	GoodDays       []string
	UnsubscribeURL string
}

// UnsubscribeURL builds the link embedded in every digest.
func (r *Renderer) UnsubscribeURL(token string) string {
	return r.baseURL + "/api/unsubscribe/" + token
}

// Render composes the digest for one subscriber. Missing verdict entries are
// treated the same as missing forecast days.
func (r *Renderer) Render(
	sub models.Subscriber,
	fc models.LocationForecast,
	verdicts []models.SuitabilityVerdict,
) models.EmailMessage {
	data := bodyData{
		City:           sub.City,
		State:          sub.State,
		ReportDate:     fc.FetchedAt.Format("Monday, January 2, 2006"),
		UnsubscribeURL: r.UnsubscribeURL(sub.UnsubscribeToken),
	}

	for i, day := range fc.Days {
		view := dayView{
			DayName: day.Date.Format("Monday"),
			Date:    day.Date.Format("2006-01-02"),
		}
		if day.Missing || i >= len(verdicts) {
			view.Missing = true
			view.Verdict = string(models.VerdictPoor)
			view.Rationale = "forecast unavailable for this day"
		} else {
			v := verdicts[i]
			view.Verdict = string(v.Verdict)
			view.Rationale = v.Rationale
			view.HighTemp = fmt.Sprintf("%.0f°F", day.HighTemp)
			view.LowTemp = fmt.Sprintf("%.0f°F", day.LowTemp)
			view.Condition = day.Condition
			view.Good = v.Verdict == models.VerdictGood
			if view.Good {
				data.GoodDays = append(data.GoodDays, view.DayName)
			}
		}
		data.Days = append(data.Days, view)
	}

	var body bytes.Buffer
	if err := r.tmpl.Execute(&body, data); err != nil {
		// The template is parsed at startup; execution can only fail on a
		// broken writer, which bytes.Buffer is not. Degrade to plain text.
		r.log.Error().Err(err).Str("email", sub.Email).Msg("digest template execution failed")
		body.Reset()
		body.WriteString(fmt.Sprintf("Bike weather report for %s, %s. Unsubscribe: %s",
			sub.City, sub.State, data.UnsubscribeURL))
	}

	return models.EmailMessage{
		To:      sub.Email,
		Subject: subject(sub.City, len(data.GoodDays)),
		Body:    body.String(),
	}
}

func subject(city string, goodDays int) string {
	if goodDays == 0 {
		return fmt.Sprintf("🚴 Bike Weather Report for %s - no ideal conditions", city)
	}
	return fmt.Sprintf("🚴 %d good biking day(s) this week in %s!", goodDays, city)
}
