package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"concord/internal/logging"

	"github.com/stretchr/testify/assert"
)

func TestChain(t *testing.T) {
	logger := logging.NewNop()

	var seenID string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = logging.RequestID(r.Context())
		if r.URL.Path == "/panic" {
			panic("boom")
		}
		w.WriteHeader(http.StatusTeapot)
	}), RequestID, Logger(logger), Recover(logger))

	t.Run("assigns request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		assert.Equal(t, rec.Header().Get("X-Request-ID"), seenID)
	})

	t.Run("keeps incoming request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "abc", seenID)
	})

	t.Run("recovers panics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		assert.NotPanics(t, func() {
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `"type":"INTERNAL"`)
	})
}
