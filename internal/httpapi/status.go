package httpapi

import (
	"net/http"

	"github.com/chilledornaments/htaccess-tester-core/internal/config"
)

// HandleStatus reports liveness: "OK" once a config has loaded, and 503
// "NOT READY" before that.
func HandleStatus(store *config.Store) http.Handler {
	f := func(w http.ResponseWriter, r *http.Request) {
		cfg := store.Get()
		if cfg == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT READY"))
			return
		}
		_, _ = w.Write([]byte("OK"))
	}

	return http.HandlerFunc(f)
}
