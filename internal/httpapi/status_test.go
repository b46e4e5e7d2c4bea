package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chilledornaments/htaccess-tester-core/internal/config"
)

func Test_HandleStatus_okOnceConfigLoaded(t *testing.T) {
	store := config.NewStore(&config.AppConfig{RulesText: "RewriteEngine On\n"})
	handler := HandleStatus(store)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
