package chi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/dirsearch/internal/logger"
	"github.com/kailas-cloud/dirsearch/internal/metrics"
)

// RouterConfig wires authentication and the optional MCP endpoint.
type RouterConfig struct {
	AdminKeys []string
	APIKeys   []string
	// MCP is mounted at /mcp behind the API keys when set.
	MCP    http.Handler
	Logger *zap.Logger
}

// NewRouter builds the HTTP handler: open /health and /metrics, admin routes behind admin keys,
// tool routes behind API keys.
func NewRouter(s *Server, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(cfg.AdminKeys))

		r.Post("/accounts", s.CreateAccount)
		r.Route("/accounts/{account}/lists", func(r chi.Router) {
			r.Post("/", s.CreateList)
			r.Get("/", s.ListLists)
			r.Get("/{list}", s.GetList)
			r.Delete("/{list}", s.DeleteList)
			r.Put("/{list}/records/{external_id}", s.UpsertRecord)
		})
		r.Put("/grants", s.PutGrant)
		r.Delete("/grants", s.DeleteGrant)
		r.Post("/resync", s.Resync)
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(cfg.APIKeys))
		r.Use(RequireAgent)
		r.Post("/v1/search", s.Search)
		if cfg.MCP != nil {
			r.Handle("/mcp", cfg.MCP)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})

	return r
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(ErrorResponse{Code: codeInternal, Message: "internal error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line: one per request. Bodies are never logged.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
