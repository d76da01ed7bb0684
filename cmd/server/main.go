package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/offerrules/internal/config"
	"github.com/liamcoop/offerrules/internal/logger"
	"github.com/liamcoop/offerrules/rules"
)

// Stores groups the record managers the server works against
type Stores struct {
	Rules           rules.RuleStore
	Groups          rules.ProductGroupStore
	Recommendations rules.RecommendationStore
}

type Server struct {
	cfg             config.Config
	db              *sql.DB // nil when running over in-memory stores
	engine          *rules.Engine
	recommendations rules.RecommendationStore
	cache           rules.SnapshotCache
	router          *chi.Mux
}

// healthChecker is implemented by snapshot caches backed by an external service
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewServer connects to Postgres and, when configured, Redis
func NewServer(cfg config.Config) (*Server, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := NewServerWithDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewServerWithDB builds a server over Postgres stores on an open database
func NewServerWithDB(db *sql.DB, cfg config.Config) (*Server, error) {
	cache, err := newSnapshotCache(cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewServerWithStores(cfg, Stores{
		Rules:           rules.NewPostgresRuleStore(db),
		Groups:          rules.NewPostgresProductGroupStore(db),
		Recommendations: rules.NewPostgresRecommendationStore(db),
	}, cache)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

// NewServerWithStores builds a server over the given stores and snapshot cache
func NewServerWithStores(cfg config.Config, stores Stores, cache rules.SnapshotCache) (*Server, error) {
	engine, err := rules.NewEngineWithCache(stores.Rules, stores.Groups, cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	snapshot, err := engine.Snapshot()
	if err != nil {
		return nil, err
	}
	logger.Info("loaded rules", "rules", len(snapshot.Rules), "product_groups", len(snapshot.Groups))

	s := &Server{
		cfg:             cfg,
		engine:          engine,
		recommendations: stores.Recommendations,
		cache:           cache,
	}

	s.setupRoutes()

	return s, nil
}

func newSnapshotCache(cfg config.Config) (rules.SnapshotCache, error) {
	cacheConfig := rules.CacheConfig{TTL: cfg.CacheTTL}

	if cfg.Redis.Addr == "" {
		return rules.NewInMemorySnapshotCache(cacheConfig), nil
	}

	cache, err := rules.NewRedisSnapshotCache(rules.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}
	return cache, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(s.cfg.RateLimitPerMinute))

			r.Post("/evaluate", s.handleEvaluate)

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", s.handleListRules)
				r.Post("/", s.handleCreateRule)
				r.Get("/{ruleId}", s.handleGetRule)
				r.Put("/{ruleId}", s.handleUpdateRule)
				r.Delete("/{ruleId}", s.handleDeleteRule)
			})

			r.Route("/product-groups", func(r chi.Router) {
				r.Get("/", s.handleListProductGroups)
				r.Post("/", s.handleCreateProductGroup)
				r.Get("/{groupId}", s.handleGetProductGroup)
				r.Put("/{groupId}", s.handleUpdateProductGroup)
				r.Delete("/{groupId}", s.handleDeleteProductGroup)
			})

			r.Route("/recommendations", func(r chi.Router) {
				r.Get("/", s.handleListRecommendations)
				r.Post("/", s.handleCreateRecommendation)
				r.Get("/{recommendationId}", s.handleGetRecommendation)
				r.Put("/{recommendationId}", s.handleUpdateRecommendation)
				r.Delete("/{recommendationId}", s.handleDeleteRecommendation)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the database and snapshot cache connections
func (s *Server) Close() error {
	var errs []error
	if closer, ok := s.cache.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// rateLimit limits requests per client IP over a one minute window
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
		}),
	)
}

// requestLogger logs each request through the structured logger
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	if err := logger.Setup(context.Background(), logger.Options{
		Level:       cfg.LogLevel,
		SampleRate:  cfg.ErrorSampleRate,
		OTELEnabled: os.Getenv("OTEL_ENABLED") == "true",
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
	}); err != nil {
		logger.Warn("logging setup degraded", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("log export shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
