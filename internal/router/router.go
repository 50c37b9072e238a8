package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/fridge/internal/auth"
	"github.com/ovaphlow/fridge/internal/metrics"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware returns a middleware that logs requests at debug level
// and counts them when m is non-nil.
func LoggingMiddleware(logger *zap.SugaredLogger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(r.Method, status)
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets conservative security headers. Responses
// carry session cookies and user data, so none of them may be cached.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cache-Control", "no-store")
			if h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self'; form-action 'self';")
			}
			// HSTS only makes sense over TLS
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the handlers and collaborators the routes are built from.
type Deps struct {
	Auth    *auth.Handler
	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	// auth routes
	mux.HandleFunc("GET /login", d.Auth.LoginPage)
	mux.HandleFunc("POST /login", d.Auth.Submit)
	mux.HandleFunc("POST /logout", d.Auth.Logout)
	mux.Handle("GET /{$}", d.Auth.RequireAuthenticated(http.HandlerFunc(d.Auth.Me)))

	// wrap with security headers middleware then logging middleware
	handler := LoggingMiddleware(d.Logger, d.Metrics)(SecurityHeadersMiddleware()(mux))
	return handler
}
