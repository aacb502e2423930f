package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/baitwatch/internal/adapter/signature"
	"github.com/V4T54L/baitwatch/internal/domain"
	"github.com/V4T54L/baitwatch/internal/usecase"
)

func newTestHandler(t *testing.T) *AdminHandler {
	t.Helper()
	store, err := signature.Default()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAdminHandler(nil, store, usecase.NewTrafficClassifier(store), logger)
}

func TestAdminHandler_HealthWithoutIngestor(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAdminHandler_Classify(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLevel  domain.ThreatLevel
	}{
		{name: "python wordpress probe", query: "ua=python-requests/2.28.0&path=/wp-admin/", wantStatus: http.StatusOK, wantLevel: domain.ThreatReconnaissance},
		{name: "path only", query: "path=/etc/passwd", wantStatus: http.StatusOK, wantLevel: domain.ThreatMalicious},
		{name: "empty user agent is allowed", query: "ua=&path=/", wantStatus: http.StatusOK, wantLevel: domain.ThreatReconnaissance},
		{name: "no parameters", query: "", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Classify(rec, httptest.NewRequest(http.MethodGet, "/classify?"+tt.query, nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var res domain.ClassificationResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.wantLevel, res.ThreatLevel)
		})
	}
}
