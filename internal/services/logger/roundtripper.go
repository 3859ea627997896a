package logger

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxLoggedBody caps the response snippet captured at debug level.
const maxLoggedBody = 2048

// ForecastTransport logs every OpenWeather call made by the forecast client.
// The request URL is logged without its query string, which carries the API
// key; response bodies are captured truncated and only when debug logging is
// enabled, so routine daily polling does not bloat the log file.
type ForecastTransport struct {
	logger *zap.Logger
	next   http.RoundTripper
}

func NewRoundTripper(logger *zap.Logger) *ForecastTransport {
	return &ForecastTransport{
		logger: logger,
		next:   http.DefaultTransport,
	}
}

func (t *ForecastTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	endpoint := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path

	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.logger.Error("forecast upstream request failed",
			zap.String("method", req.Method),
			zap.String("endpoint", endpoint),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("endpoint", endpoint),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	}

	if t.logger.Core().Enabled(zap.DebugLevel) {
		if snippet, readErr := t.captureBody(resp); readErr == nil {
			t.logger.Debug("forecast upstream response body",
				append(fields, zap.ByteString("body", snippet))...)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Warn("forecast upstream returned error status", fields...)
	} else {
		t.logger.Info("forecast upstream request completed", fields...)
	}

	return resp, nil
}

// captureBody reads the response body so a truncated snippet can be logged,
// then restores it for the client.
func (t *ForecastTransport) captureBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if cerr := resp.Body.Close(); cerr != nil {
		t.logger.Warn("failed to close upstream response body", zap.Error(cerr))
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if len(body) > maxLoggedBody {
		return body[:maxLoggedBody], nil
	}
	return body, nil
}
