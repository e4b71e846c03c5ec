package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/code-eval-worker/internal/config"
)

func authedHandler(cfg config.Config) http.Handler {
	return APIKeyAuth(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	cfg := config.Config{APIHeaderName: "X-Api-Key", APIKey: "s3cret"}

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"valid key", "X-Api-Key", "s3cret", http.StatusOK},
		{"missing header", "", "", http.StatusUnauthorized},
		{"wrong key", "X-Api-Key", "nope", http.StatusUnauthorized},
		{"prefix of key", "X-Api-Key", "s3cre", http.StatusUnauthorized},
		{"wrong header name", "Authorization", "s3cret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/execute", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			authedHandler(cfg).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAPIKeyAuth_DisabledWithoutKey(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	authedHandler(config.Config{APIHeaderName: "X-Api-Key"}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_ErrorEnvelope(t *testing.T) {
	t.Parallel()

	cfg := config.Config{APIHeaderName: "X-Api-Key", APIKey: "s3cret"}
	rec := httptest.NewRecorder()
	authedHandler(cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}
