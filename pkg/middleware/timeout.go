package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds every request context to d. Handlers observe the deadline
// through r.Context(); the retrieval pipeline degrades to its fallback result
// when it fires. Non-positive d disables the bound.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
