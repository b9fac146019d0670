package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the client-chosen or generated correlation id.
const RequestIDHeader = "X-Request-Id"

// RequestID ensures every request carries a correlation id: an inbound
// X-Request-Id is kept, otherwise a UUID is assigned. The id is echoed on the
// response so clients can correlate logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
