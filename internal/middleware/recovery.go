package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/quantfolio/allocengine/internal/logger"
)

// Recovery converts panics into a 500 response instead of tearing down
// the connection.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithFields(map[string]interface{}{
						"request_id": GetRequestID(r.Context()),
						"panic":      rec,
						"path":       r.URL.Path,
					}).Error("Recovered from panic")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"status": "error",
						"error":  "internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
