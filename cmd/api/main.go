// Package main is the entrypoint for the viewtally API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/viewtally/viewtally/internal/cache"
	"github.com/viewtally/viewtally/internal/config"
	"github.com/viewtally/viewtally/internal/handler"
	"github.com/viewtally/viewtally/internal/maintenance"
	"github.com/viewtally/viewtally/internal/metrics"
	"github.com/viewtally/viewtally/internal/middleware"
	"github.com/viewtally/viewtally/internal/repository"
	"github.com/viewtally/viewtally/internal/server"
	"github.com/viewtally/viewtally/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	counter := service.NewCounter(
		repo,
		cacheClient,
		cacheClient,
		buildExclusions(cfg, logger),
		nil,
		service.CounterConfig{
			Cooldown: cfg.CountInterval,
			Atomic:   cfg.CountAtomic,
			FastPath: cfg.FastPathEnabled,
			Location: cfg.Location(),
		},
		logger,
		recorder,
	)

	jobs := maintenance.New(repo, cacheClient, logger, recorder)
	worker := maintenance.NewWorker(jobs, logger, cfg.FlushInterval, maintenance.DefaultResetInterval, cfg.Retention())

	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	metricsHandler := handler.NewMetricsHandler(recorder)
	countHandler := handler.NewCountHandler(counter, logger)
	statsHandler := handler.NewStatsHandler(repo, logger)
	contentHandler := handler.NewContentHandler(repo, logger)

	r := setupRouter(routerDeps{
		base:    h,
		health:  healthHandler,
		metrics: metricsHandler,
		count:   countHandler,
		stats:   statsHandler,
		content: contentHandler,
		cache:   cacheClient,
		cfg:     cfg,
		logger:  logger,
	})

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// The worker drains the Redis write-behind buffer on shutdown, so it is
	// registered before Run and stopped after the HTTP server.
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go func() {
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("maintenance worker stopped", "error", err)
		}
	}()
	srv.OnShutdown("maintenance", worker.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"cooldown", cfg.CountInterval.String(),
		"fast_path", cfg.FastPathEnabled,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildExclusions assembles the exclusion predicate from configuration.
func buildExclusions(cfg *config.Config, logger *slog.Logger) service.Exclusions {
	group := service.GroupRule{Roles: cfg.GetExcludedRoles()}
	for _, name := range cfg.GetExcludedGroups() {
		switch name {
		case "guests":
			group.Guests = true
		case "logged_in":
			group.LoggedIn = true
		case "crawlers":
			group.Crawlers = true
		default:
			logger.Warn("unknown exclusion group ignored", "group", name)
		}
	}

	return service.NewExclusions(group, service.NewIPRule(cfg.GetExcludedIPs()))
}

type routerDeps struct {
	base    *handler.Handler
	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	count   *handler.CountHandler
	stats   *handler.StatsHandler
	content *handler.ContentHandler
	cache   *cache.Cache
	cfg     *config.Config
	logger  *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      d.cfg.IsDevelopment(),
		MaxRequestBodySize: d.cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.MaxBodySize(d.cfg.MaxRequestBodySize))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = d.cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	r.Get("/metrics", d.metrics.Metrics)

	// Root info endpoint
	r.Get("/", d.base.Hello)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  d.logger,
		Cache:   d.cache,
		Enabled: d.cfg.RateLimitCountEnabled,
		RPS:     d.cfg.RateLimitCountRPS,
		Burst:   d.cfg.RateLimitCountBurst,
	}

	adminCfg := middleware.AdminAuthConfig{
		Logger:  d.logger,
		KeyHash: d.cfg.AdminKeyHash,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public counting endpoint, per-IP rate limited.
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/views/{id}", d.count.Count)

		// Public read side.
		r.Route("/stats", func(r chi.Router) {
			r.Get("/total", d.stats.Total)
			r.Get("/series", d.stats.Series)
			r.Get("/most-viewed", d.stats.MostViewed)
		})

		// Content registry; mutations are admin-only.
		r.Route("/content", func(r chi.Router) {
			r.Get("/{id}", d.content.Get)
			r.With(middleware.AdminAuth(adminCfg)).Post("/", d.content.Create)
			r.With(middleware.AdminAuth(adminCfg)).Delete("/{id}", d.content.Delete)
		})
	})

	// 404 and 405 handlers
	r.NotFound(d.base.NotFound)
	r.MethodNotAllowed(d.base.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
