// Package main is the entry point for the brandscope-api server.
// The server exposes the four-phase brand intelligence pipeline behind
// API key authentication, with Kubernetes probes and Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brandscope/brandscope-api/internal/browser"
	"github.com/brandscope/brandscope-api/internal/cache"
	"github.com/brandscope/brandscope-api/internal/config"
	"github.com/brandscope/brandscope-api/internal/database"
	"github.com/brandscope/brandscope-api/internal/evidence"
	"github.com/brandscope/brandscope-api/internal/http/handlers"
	"github.com/brandscope/brandscope-api/internal/http/mw"
	"github.com/brandscope/brandscope-api/internal/llm"
	"github.com/brandscope/brandscope-api/internal/logging"
	"github.com/brandscope/brandscope-api/internal/metrics"
	"github.com/brandscope/brandscope-api/internal/repository"
	"github.com/brandscope/brandscope-api/internal/scraper"
	"github.com/brandscope/brandscope-api/internal/service"
	"github.com/brandscope/brandscope-api/internal/version"
	"github.com/brandscope/brandscope-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	// Log version info first thing
	v := version.Get()
	logger.Info("starting brandscope-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	// Local development convenience; missing .env is fine
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Run migrations (with logging for each migration applied)
	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Prometheus registry with process/runtime collectors plus our own
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	// Fast cache tier
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	// Browser pool
	pool := browser.NewPool(cfg.BrowserPoolSize, browser.NewRodFactory(), m, logger)
	if err := pool.Init(); err != nil {
		logger.Error("failed to start browser pool", "error", err)
		os.Exit(1)
	}
	logger.Info("browser pool ready", "size", cfg.BrowserPoolSize)

	// Pipeline components
	twoTier := cache.NewTwoTier(rdb, repos.Cache, m, logger)
	pageScraper := scraper.New(pool, twoTier, nil, m, logger, scraper.Config{
		Concurrency:    cfg.ScrapeConcurrency,
		AcquireTimeout: cfg.BrowserAcquireTimeout,
		CacheTTL:       cfg.CacheTTLScraping,
	})
	gateway := llm.NewGateway(llm.Config{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.OpenAITimeout,
	}, m, logger)
	validator := evidence.NewValidator(nil)

	// Initialize services
	services := service.NewServices(cfg, repos, pageScraper, gateway, validator, logger)

	// Start background maintenance loops
	reaper := worker.New(repos, m, worker.Config{
		MetricsRetention: cfg.MetricsRetention,
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	reaper.Start(ctx)

	// Framework-raised failures use the same envelope as service errors
	handlers.ConfigureErrors()

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mw.RequestMeta(m, repos.Metrics, logger))
	router.Use(middleware.Recoverer)
	router.Use(mw.Timeout(cfg.RequestTimeout))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Request size limit (1MB) - prevent large payload attacks
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Per-(IP, API key) rate limit across the whole surface, probes included
	router.Use(mw.RateLimit(cfg.RateLimitMax))

	// Create Huma API config for the public API with OpenAPI docs
	humaConfig := huma.DefaultConfig("Brandscope API", v.Version)
	humaConfig.Info.Description = "Brand intelligence pipeline: scrape a brand site, discover and analyze competitors, and assemble a competitive-intelligence kernel."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"apiKeyAuth": {
			Type:        "apiKey",
			In:          "header",
			Name:        mw.APIKeyHeader,
			Description: "Shared API key presented in the X-API-Key header.",
		},
	}
	api := humachi.New(router, humaConfig)

	// Config for hidden routes (K8s probes - no docs needed)
	hiddenConfig := huma.DefaultConfig("Brandscope API", v.Version)
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)

	// Health and probes (public)
	healthHandler := handlers.NewHealthHandler(db, twoTier, pool, cfg.OpenAIAPIKey != "")
	huma.Get(api, "/health", healthHandler.Health)
	huma.Get(hiddenAPI, "/health/live", handlers.Live)
	huma.Get(hiddenAPI, "/health/ready", healthHandler.Ready)

	// Prometheus scrape endpoint
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	// Pipeline routes (API key required)
	router.Group(func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.APIKey))

		protectedConfig := huma.DefaultConfig("Brandscope API", v.Version)
		protectedConfig.Info.Description = humaConfig.Info.Description
		protectedConfig.Servers = humaConfig.Servers
		protectedConfig.DocsPath = ""
		protectedConfig.OpenAPIPath = ""
		protectedConfig.SchemasPath = ""
		protectedAPI := humachi.New(r, protectedConfig)

		pipelineHandler := handlers.NewPipelineHandler(services, logger)
		huma.Post(protectedAPI, "/v1/brand-summary", pipelineHandler.BrandSummary)
		huma.Post(protectedAPI, "/v1/competitors", pipelineHandler.Competitors)
		huma.Post(protectedAPI, "/v1/competitors/analyze", pipelineHandler.CompetitorsAnalyze)
		huma.Post(protectedAPI, "/v1/kernel", pipelineHandler.Kernel)
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		// Stop the maintenance loops first
		cancel()
		reaper.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}

		pool.Close()
	}()

	// Start server
	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "model", cfg.OpenAIModel)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
