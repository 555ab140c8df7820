package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/switchboard/internal/config"
	"github.com/davidbz/switchboard/internal/http/middleware"
	"github.com/davidbz/switchboard/internal/observability"
)

func TestChain(t *testing.T) {
	t.Run("should apply the first middleware outermost", func(t *testing.T) {
		var order []string
		tag := func(name string) middleware.Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		handler := middleware.Chain(tag("a"), tag("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			order = append(order, "handler")
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, []string{"a", "b", "handler"}, order)
	})
}

func TestTrace(t *testing.T) {
	t.Run("should inject ids into the context and response", func(t *testing.T) {
		var traceID, requestID string
		handler := middleware.Trace()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID = observability.GetTraceID(r.Context())
			requestID = observability.GetRequestID(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusTeapot, w.Code)
		require.NotEmpty(t, traceID)
		require.NotEmpty(t, requestID)
		require.Equal(t, traceID, w.Header().Get("X-Trace-Id"))
		require.Equal(t, requestID, w.Header().Get("X-Request-Id"))
	})

	t.Run("should keep a caller supplied request id", func(t *testing.T) {
		var requestID string
		handler := middleware.Trace()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			requestID = observability.GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "req-42")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, "req-42", requestID)
		require.Equal(t, "req-42", w.Header().Get("X-Request-Id"))
	})

	t.Run("should keep the writer flushable", func(t *testing.T) {
		var flushable bool
		handler := middleware.Trace()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			flusher, ok := w.(http.Flusher)
			flushable = ok
			if ok {
				flusher.Flush()
			}
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.True(t, flushable)
		require.True(t, w.Flushed)
	})
}

func TestCORS(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Api-Key"},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("should answer preflight requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/messages", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "X-Api-Key")

		w := httptest.NewRecorder()
		middleware.CORS(cfg)(next).ServeHTTP(w, req)

		require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	})

	t.Run("should expose trace headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://app.example.com")

		w := httptest.NewRecorder()
		middleware.BuildMiddlewareChain(cfg)(next).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Trace-Id")
		require.NotEmpty(t, w.Header().Get("X-Trace-Id"))
	})

	t.Run("should pass through without config", func(t *testing.T) {
		w := httptest.NewRecorder()
		middleware.CORS(nil)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}
