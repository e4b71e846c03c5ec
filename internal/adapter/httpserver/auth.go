package httpserver

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/fairyhunter13/code-eval-worker/internal/config"
	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

// APIKeyAuth guards mutating endpoints with the shared-secret header
// the orchestrator sends. The comparison is constant time. An empty
// configured key disables the guard, which only Validate permits in
// the dev environment.
func APIKeyAuth(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.APIKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(cfg.APIHeaderName)
			if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.APIKey)) != 1 {
				writeError(w, r, fmt.Errorf("%w: missing or invalid api key", domain.ErrUnauthorized), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
