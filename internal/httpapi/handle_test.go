package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilledornaments/htaccess-tester-core/internal/config"
	"github.com/chilledornaments/htaccess-tester-core/internal/logging"
)

func testStore(t *testing.T, rulesText string) *config.Store {
	t.Helper()
	return config.NewStore(&config.AppConfig{
		RulesText: rulesText,
		Limits:    config.LimitsConfig{MaxIterations: 100, MaxURLLength: 8192, MaxRegexSubjectLength: 2048},
	})
}

func Test_HandleEvaluate_redirectsPerRules(t *testing.T) {
	store := testStore(t, "RewriteEngine On\nRewriteRule ^old$ /new [R=301,L]\n")
	handler := HandleEvaluate(logging.New(0, false), store)

	body, err := json.Marshal(evaluateRequest{URL: "http://example.com/old"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp evaluateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "http://example.com/new", resp.FinalURL)
	require.NotNil(t, resp.StatusCode)
	assert.Equal(t, 301, *resp.StatusCode)
}

func Test_HandleEvaluate_perRequestRulesOverrideConfiguredRules(t *testing.T) {
	store := testStore(t, "RewriteEngine On\nRewriteRule ^old$ /new [R=301,L]\n")
	handler := HandleEvaluate(logging.New(0, false), store)

	body, err := json.Marshal(evaluateRequest{
		URL:   "http://example.com/old",
		Rules: "RewriteEngine On\nRewriteRule ^old$ /elsewhere [R=302,L]\n",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp evaluateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "http://example.com/elsewhere", resp.FinalURL)
	require.NotNil(t, resp.StatusCode)
	assert.Equal(t, 302, *resp.StatusCode)
}

func Test_HandleEvaluate_perRequestLimitsOverrideConfiguredLimits(t *testing.T) {
	store := testStore(t, "RewriteEngine On\n"+
		"RewriteRule ^(.*)$ /$1 [N]\n"+
		"RewriteRule ^(.*)$ /$1 [N]\n"+
		"RewriteRule ^(.*)$ /$1 [N]\n")
	handler := HandleEvaluate(logging.New(0, false), store)

	body, err := json.Marshal(evaluateRequest{
		URL:    "http://example.com/loop",
		Limits: &requestLimits{MaxIterations: 2, MaxURLLength: 8192, MaxRegexSubjectLength: 2048},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp evaluateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "limit-exceeded", string(resp.Status))
}

func Test_HandleEvaluate_malformedBodyIsBadRequest(t *testing.T) {
	store := testStore(t, "RewriteEngine On\n")
	handler := HandleEvaluate(logging.New(0, false), store)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_HandleEvaluate_missingURLIsBadRequest(t *testing.T) {
	store := testStore(t, "RewriteEngine On\n")
	handler := HandleEvaluate(logging.New(0, false), store)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_HandleEvaluate_rejectsNonPost(t *testing.T) {
	store := testStore(t, "RewriteEngine On\n")
	handler := HandleEvaluate(logging.New(0, false), store)

	req := httptest.NewRequest(http.MethodGet, "/evaluate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
