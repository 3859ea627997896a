//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewFlow(t *testing.T) {
	resp, err := http.Get(testServerURL + "/api/preview?city=Boston&state=MA")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "Boston")
}

func TestPreviewUnknownLocation(t *testing.T) {
	resp, err := http.Get(testServerURL + "/api/preview?city=Atlantis&state=ZZ")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDispatchRequiresAdminKey(t *testing.T) {
	resp, err := http.Post(testServerURL+"/api/dispatch", "", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDispatchFlow(t *testing.T) {
	insertSubscriber(t, "flow-erin@example.com", "flow-erin-token")

	req, err := http.NewRequest(http.MethodPost, testServerURL+"/api/dispatch", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Key", testAdminKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary struct {
		Sent    int `json:"sent"`
		Skipped int `json:"skipped"`
		Failed  int `json:"failed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))

	// No SMTP server listens in this suite, so deliveries fail while the run
	// itself completes and accounts for every active subscriber.
	assert.Positive(t, summary.Sent+summary.Skipped+summary.Failed)
}

func TestAdminListSubscribers(t *testing.T) {
	insertSubscriber(t, "flow-frank@example.com", "flow-frank-token")

	req, err := http.NewRequest(http.MethodGet, testServerURL+"/api/admin/subscribers", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Key", testAdminKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "flow-frank@example.com")
	assert.NotContains(t, string(body), "flow-frank-token")
}
