package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/davidbz/switchboard/internal/config"
)

// CORS handles cross-origin requests with github.com/rs/cors. The trace
// headers are exposed so browser clients can correlate logs.
func CORS(cfg *config.CORSConfig) Middleware {
	if cfg == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   []string{headerTraceID, headerRequestID},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})

	return c.Handler
}
