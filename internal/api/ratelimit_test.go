package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitLimiter_RejectsExcessSubmissions(t *testing.T) {
	ts := setupTestServer(t, func(s *Services) {
		s.SubmitLimiter = NewSubmitLimiter(1)
	})

	resp := ts.api.Post("/api/v1/narrations", map[string]any{"text": "First."})
	assert.Equal(t, http.StatusAccepted, resp.Code)

	resp = ts.api.Post("/api/v1/narrations", map[string]any{"text": "Second."})
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "60", resp.Header().Get("Retry-After"))
	assert.Contains(t, resp.Body.String(), `"code":"RATE_LIMITED"`)

	// Reads are never limited.
	resp = ts.api.Get("/api/v1/narrations")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestNewSubmitLimiter_ZeroDisables(t *testing.T) {
	assert.Nil(t, NewSubmitLimiter(0))
}
