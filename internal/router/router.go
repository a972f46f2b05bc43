package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-statehub-go/pkg/utilities"
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

// LoggingMiddleware tags each request with an id, logs it at debug level and
// counts it by method and status.
func LoggingMiddleware(logger *zap.SugaredLogger, ids *utilities.IDGenerator, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := ids.Next()
			w.Header().Set("X-Request-Id", reqID)
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			if m != nil {
				m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			}
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. The GraphQL
// playground loads its assets from a CDN, so CSP is left to routes that set it.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Options carries everything the routes need.
type Options struct {
	Logger        *zap.SugaredLogger
	IDs           *utilities.IDGenerator
	Metrics       *metrics.Metrics
	Sessions      *session.Manager
	Users         *user.Handler
	GraphQL       http.Handler
	CORSOrigins   []string
	AuthRateLimit int
	Playground    bool
}

// RegisterRoutes mounts the REST auth endpoints and the GraphQL endpoint.
func RegisterRoutes(o Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(o.Logger, o.IDs, o.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.CORSOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "Apollo-Require-Preflight"},
		ExposedHeaders:   []string{"X-Cache", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(SecurityHeadersMiddleware())
	r.Use(o.Sessions.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if o.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.Metrics.Handler())
	}

	limit := o.AuthRateLimit
	if limit <= 0 {
		limit = 20
	}
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(limit, time.Minute))
		r.Post("/signup", o.Users.Signup)
		r.Post("/login", o.Users.Login)
	})
	r.Get("/session", o.Users.Session)
	r.Post("/logout", o.Users.Logout)

	r.Method(http.MethodGet, "/graphql", o.GraphQL)
	r.Method(http.MethodPost, "/graphql", o.GraphQL)
	if o.Playground {
		r.Handle("/playground", playground.Handler("statehub", "/graphql"))
	}
	return r
}
