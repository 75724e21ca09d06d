package http

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	graphqlgo "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"expensetracker/internal/cache"
	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
)

const (
	maxRequestBody   = 1 << 20
	readyTimeout     = 2 * time.Second
	assetCacheMaxAge = 365 * 24 * 60 * 60
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionMiddleware attaches the caller's session to the request context.
type SessionMiddleware interface {
	Middleware(next http.Handler) http.Handler
}

// Options configures the HTTP surface.
type Options struct {
	Addr               string
	AllowedOrigins     []string
	FrontendDist       string
	RateLimitPerMinute int
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Schema   *graphqlgo.Schema
	Sessions SessionMiddleware
	Store    Pinger
	Caches   *cache.Manager // may be nil
	Logger   *applog.Logger
}

// Server is the API and frontend server.
type Server struct {
	http.Server
	limiter  *ratelimit.Limiter
	caches   *cache.Manager
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentHTTP})
	}

	detector := security.NewDetector()
	s := &Server{
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		caches:   deps.Caches,
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.ErrorContext(c.Request.Context(), "Panic serving request", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Apollo-Require-Preflight"},
			ExposeHeaders:    []string{trace.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	graphqlHandler := s.limiter.Middleware(detector.ExtractClientIP, rateLimited)(
		limitBody(
			deps.Sessions.Middleware(
				applog.ComponentMiddleware(applog.ComponentGraphQL)(&relay.Handler{Schema: deps.Schema}))))

	r.POST("/graphql", gin.WrapH(graphqlHandler))
	r.GET("/graphql", func(c *gin.Context) {
		c.Header("Allow", http.MethodPost)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "GraphQL requests must use POST"})
	})
	r.GET("/healthz", handleHealth)
	r.GET("/readyz", handleReady(deps.Store))
	r.NoRoute(gin.WrapH(spaHandler(opts.FrontendDist)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.tracer.Middleware(headers.Middleware(detector.Middleware(r))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.caches != nil {
			s.caches.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics returns request counters for diagnostics.
func (s *Server) Metrics() (trace.Metrics, ratelimit.Metrics, security.DetectionMetrics) {
	return s.tracer.GetMetrics(), s.limiter.GetMetrics(), s.detector.GetMetrics()
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	slog.WarnContext(r.Context(), "Rate limit exceeded", "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"errors":[{"message":"rate limit exceeded"}]}`))
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleReady(store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "Readiness check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// spaHandler serves the built frontend from dist. Existing files are served
// as-is (fingerprinted assets with long-lived caching); any other GET path
// falls back to index.html so client-side routes work on reload.
func spaHandler(dist string) http.Handler {
	root := http.Dir(dist)
	files := http.FileServer(root)
	assets := security.StaticAssetMiddleware(assetCacheMaxAge)(files)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}

		// http.Dir rejects paths escaping dist; Clean normalizes the rest.
		name := path.Clean("/" + r.URL.Path)
		if f, err := root.Open(name); err == nil {
			info, statErr := f.Stat()
			f.Close()
			if statErr == nil && !info.IsDir() {
				if strings.HasPrefix(name, "/assets/") {
					assets.ServeHTTP(w, r)
				} else {
					files.ServeHTTP(w, r)
				}
				return
			}
		}

		index := filepath.Join(dist, "index.html")
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, index)
	})
}
