package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
)

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func createNarration(t *testing.T, ts *testServer, body map[string]any) NarrationResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/narrations", body)
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())
	return decode[NarrationResponse](t, resp.Body.Bytes())
}

func TestCreateNarration(t *testing.T) {
	ts := setupTestServer(t)

	got := createNarration(t, ts, map[string]any{
		"title":    "Hello",
		"text":     "Hello world.",
		"narrator": "snoop",
	})

	assert.True(t, strings.HasPrefix(got.ID, "nar-"))
	assert.Equal(t, "snoop", got.Narrator)
	assert.Equal(t, 200, got.WordLimit)
	assert.Equal(t, "Hello", got.Title)

	ts.waitFor(t, got.ID, domain.NarrationStatusCompleted)

	resp := ts.api.Get("/api/v1/narrations/" + got.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	job := decode[NarrationResponse](t, resp.Body.Bytes())
	assert.Equal(t, "completed", job.Status)
	assert.Equal(t, 2, job.WordCount)
	assert.InDelta(t, 0.9, job.DurationSec, 1e-9)
}

func TestCreateNarration_ValidationError(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/narrations", map[string]any{
		"text":     "  ",
		"narrator": "morgan",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

	apiErr := decode[APIError](t, resp.Body.Bytes())
	assert.Equal(t, string(errors.CodeValidation), apiErr.Code)

	details, ok := apiErr.Details.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "text")
	assert.Contains(t, details, "narrator")
}

func TestCreateNarration_MissingText(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/narrations", map[string]any{"title": "No body"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	apiErr := decode[APIError](t, resp.Body.Bytes())
	assert.Equal(t, string(errors.CodeValidation), apiErr.Code)
}

func TestGetNarration_NotFound(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/narrations/nar-missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	apiErr := decode[APIError](t, resp.Body.Bytes())
	assert.Equal(t, string(errors.CodeNotFound), apiErr.Code)
}

func TestListNarrations(t *testing.T) {
	ts := setupTestServer(t)

	first := createNarration(t, ts, map[string]any{"text": "One."})
	second := createNarration(t, ts, map[string]any{"text": "Two."})
	ts.waitFor(t, first.ID, domain.NarrationStatusCompleted)
	ts.waitFor(t, second.ID, domain.NarrationStatusCompleted)

	resp := ts.api.Get("/api/v1/narrations?status=completed&limit=10")
	require.Equal(t, http.StatusOK, resp.Code)

	list := decode[ListNarrationsResponse](t, resp.Body.Bytes())
	require.Len(t, list.Narrations, 2)
	assert.Equal(t, second.ID, list.Narrations[0].ID)

	resp = ts.api.Get("/api/v1/narrations?status=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetNarrationWords_Offset(t *testing.T) {
	ts := setupTestServer(t)

	job := createNarration(t, ts, map[string]any{"text": "Hello world."})
	ts.waitFor(t, job.ID, domain.NarrationStatusCompleted)

	resp := ts.api.Get("/api/v1/narrations/" + job.ID + "/words?offset=1.5")
	require.Equal(t, http.StatusOK, resp.Code)

	words := decode[WordsResponse](t, resp.Body.Bytes())
	require.Len(t, words.Words, 2)
	assert.InDelta(t, 1.5, words.Words[0].StartSec, 1e-9)
	assert.InDelta(t, 2.4, words.Words[1].EndSec, 1e-9)
}

func TestGetNarrationWords_NotReady(t *testing.T) {
	ts := setupTestServer(t)
	ts.narrator.fail(errors.SynthesisTimeoutf("synthesis did not complete within %s", "15m0s"))

	job := createNarration(t, ts, map[string]any{"text": "Hello world."})
	ts.waitFor(t, job.ID, domain.NarrationStatusFailed)

	resp := ts.api.Get("/api/v1/narrations/" + job.ID + "/words")
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = ts.api.Get("/api/v1/narrations/" + job.ID)
	got := decode[NarrationResponse](t, resp.Body.Bytes())
	assert.Equal(t, string(errors.CodeSynthesisTimeout), got.ErrorCode)
}

func TestGetNarrationCaptions(t *testing.T) {
	ts := setupTestServer(t)

	job := createNarration(t, ts, map[string]any{"text": "Hello world."})
	ts.waitFor(t, job.ID, domain.NarrationStatusCompleted)

	resp := ts.api.Get("/api/v1/narrations/" + job.ID + "/captions")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/x-subrip", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Body.String(), "00:00:00,400 --> 00:00:00,900\nworld")
}

func TestDeleteNarration(t *testing.T) {
	ts := setupTestServer(t)

	job := createNarration(t, ts, map[string]any{"text": "Hello world."})
	ts.waitFor(t, job.ID, domain.NarrationStatusCompleted)

	resp := ts.api.Delete("/api/v1/narrations/" + job.ID)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get("/api/v1/narrations/" + job.ID)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
