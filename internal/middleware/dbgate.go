package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// DBGate rejects requests with 503 when the database is unreachable, so
// business logic never runs against a dead store.
func DBGate(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := db.PingContext(ctx); err != nil {
				respondWithError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
