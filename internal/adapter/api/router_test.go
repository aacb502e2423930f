package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/baitwatch/internal/adapter/api/handler"
	"github.com/V4T54L/baitwatch/internal/adapter/metrics"
	"github.com/V4T54L/baitwatch/internal/adapter/signature"
	"github.com/V4T54L/baitwatch/internal/domain"
	"github.com/V4T54L/baitwatch/internal/usecase"
)

type fakeStatus struct{}

func (fakeStatus) State() usecase.IngestState { return usecase.StateReading }
func (fakeStatus) Stats() usecase.IngestStats {
	return usecase.IngestStats{LinesRead: 10, Persisted: 9, Malformed: 1, Offset: 1234}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewIngestMetrics(reg)

	store, err := signature.Default()
	require.NoError(t, err)
	classifier, err := usecase.NewCachedClassifier(usecase.NewTrafficClassifier(store), 16, m)
	require.NoError(t, err)

	h := handler.NewAdminHandler(fakeStatus{}, store, classifier, logger)
	srv := httptest.NewServer(NewAdminRouter(h, reg, logger))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, target string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestAdminRouter_Health(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Status      string              `json:"status"`
		IngestState string              `json:"ingest_state"`
		Stats       usecase.IngestStats `json:"stats"`
	}
	resp := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "reading", body.IngestState)
	assert.Equal(t, int64(1234), body.Stats.Offset)
}

func TestAdminRouter_Classify(t *testing.T) {
	srv := newTestServer(t)

	q := url.Values{"ua": {"curl/7.68.0"}, "path": {"/.env"}}
	var res domain.ClassificationResult
	resp := getJSON(t, srv.URL+"/classify?"+q.Encode(), &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.ThreatMalicious, res.ThreatLevel)
	assert.Equal(t, 20, res.ThreatScore)
	assert.Equal(t, "malicious_credential_probe", res.Category)

	resp = getJSON(t, srv.URL+"/classify", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRouter_Signatures(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Version int `json:"version"`
		Rules   []struct {
			ID     string `json:"id"`
			Target string `json:"target"`
			Order  int    `json:"order"`
		} `json:"rules"`
	}
	resp := getJSON(t, srv.URL+"/signatures", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, signature.SupportedVersion, body.Version)
	require.NotEmpty(t, body.Rules)
	for i := 1; i < len(body.Rules); i++ {
		assert.Less(t, body.Rules[i-1].Order, body.Rules[i].Order)
	}

	var pathOnly struct {
		Rules []struct {
			Target string `json:"target"`
		} `json:"rules"`
	}
	resp = getJSON(t, srv.URL+"/signatures?target=path", &pathOnly)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, pathOnly.Rules)
	for _, r := range pathOnly.Rules {
		assert.Equal(t, "path", r.Target)
	}

	resp = getJSON(t, srv.URL+"/signatures?target=referer", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRouter_Metrics(t *testing.T) {
	srv := newTestServer(t)

	getJSON(t, srv.URL+"/classify?ua=Googlebot/2.1&path=/", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `baitwatch_classifier_classifications_total{threat_level="benign"} 1`)
}
