package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ocervell/flash/pkg/httputil"
)

// Recoverer converts handler panics into a generic 500 response. The
// panic detail is logged, never sent to the client.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in handler",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("url", r.URL.String()),
						zap.Stack("stack"))
					httputil.Error(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
