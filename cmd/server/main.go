package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	aliasapp "github.com/erp/reconciliation/internal/application/alias"
	apmatchapp "github.com/erp/reconciliation/internal/application/apmatch"
	matchingapp "github.com/erp/reconciliation/internal/application/matching"
	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/infrastructure/cache"
	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/erp/reconciliation/internal/infrastructure/event"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/infrastructure/persistence"
	"github.com/erp/reconciliation/internal/infrastructure/storage"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/erp/reconciliation/internal/interfaces/http/handler"
	"github.com/erp/reconciliation/internal/interfaces/http/middleware"
	"github.com/erp/reconciliation/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/erp/reconciliation/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			ERP Reconciliation API
//	@version		1.0
//	@description	Bank reconciliation and accounts payable matching for construction ERP tenants

//	@contact.name	API Support
//	@contact.url	https://github.com/erp/reconciliation

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	TenantHeader
//	@in							header
//	@name						X-Tenant-ID
//	@description				Tenant UUID. Requests without it run against the development tenant.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	// OTLP log export needs a logger of its own, then the main logger is rebuilt with the bridge core
	loggerProvider, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogExportEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if loggerProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(cfg.Telemetry.ServiceName, loggerProvider, logger.ParseLevel(cfg.Log.Level))
		if log, err = logger.New(logCfg, otelCore); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting ERP Reconciliation",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter(telemetry.TracerName)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && tracerProvider.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))

	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		if _, err := telemetry.RegisterPoolMetrics(meter, sqlDB); err != nil {
			log.Warn("Failed to register connection pool metrics", zap.Error(err))
		}
	}

	matchingMetrics, err := telemetry.NewMatchingMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create matching metrics", zap.Error(err))
	}

	// Redis is optional; the factory falls back to in-process caches and locks
	var redisClient *redis.Client
	if cfg.Matching.CacheBackend == cache.BackendRedis || cfg.Matching.LockBackend == cache.BackendRedis {
		redisClient, err = cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					log.Error("Error closing Redis client", zap.Error(err))
				}
			}()
		}
	}
	cacheFactory := cache.NewFactory(cfg.Matching, redisClient,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	suggestionCache, err := cacheFactory.SuggestionCache()
	if err != nil {
		log.Fatal("Failed to create suggestion cache", zap.Error(err))
	}
	locker, err := cacheFactory.Locker()
	if err != nil {
		log.Fatal("Failed to create keyed locker", zap.Error(err))
	}

	archive := newFeedbackArchive(&cfg.Storage, log)

	// Repositories
	documentRepo := persistence.NewGormDocumentRepository(db.DB)
	linkRepo := persistence.NewGormLinkRepository(db.DB)
	feedbackRepo := persistence.NewGormFeedbackRepository(db.DB)
	poLineRepo := persistence.NewGormPOLineRepository(db.DB)
	apLinkRepo := persistence.NewGormApLinkRepository(db.DB)
	aliasRepo := persistence.NewGormAliasRepository(db.DB)

	// Event bus and handlers
	eventBus := event.NewInMemoryEventBus(log)
	cacheInvalidator := matchingapp.NewSuggestionCacheInvalidator(suggestionCache, log)
	eventBus.Subscribe(cacheInvalidator)
	promotionLogger := aliasapp.NewPromotionLogger(log)
	eventBus.Subscribe(promotionLogger)
	log.Info("Event handlers registered",
		zap.Strings("suggestion_cache_events", cacheInvalidator.EventTypes()),
		zap.Strings("alias_promotion_events", promotionLogger.EventTypes()),
	)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Matching engine
	tolerance, overrides, err := toleranceFromConfig(cfg.Matching)
	if err != nil {
		log.Fatal("Invalid matching configuration", zap.Error(err))
	}
	resolver := matching.NewToleranceResolver(tolerance, overrides...)
	engine := matching.NewEngine(
		matching.NewCandidateGenerator(documentRepo),
		matching.NewDefaultScorer(),
		matching.NewCombinationSearch(combinationFromConfig(cfg.Matching), nil),
		linkRepo,
		engineFromConfig(cfg.Matching),
	)
	log.Info("Matching engine configured",
		zap.String("amount_tol_pct", tolerance.AmountTolPct.String()),
		zap.Int("date_window_days", tolerance.DateWindowDays),
		zap.Int("tolerance_overrides", len(overrides)),
		zap.Int("max_combination_size", cfg.Matching.MaxCombinationSize),
	)

	// Application services
	reconciliationService := matchingapp.NewReconciliationService(
		engine, resolver, documentRepo, linkRepo, locker, eventBus, log,
		matchingapp.WithSuggestionCache(suggestionCache),
		matchingapp.WithMetrics(matchingMetrics),
		matchingapp.WithBatchLimits(cfg.Matching.BatchMaxItems, cfg.Matching.BatchWorkers),
	)
	feedbackService := matchingapp.NewFeedbackService(feedbackRepo, archive, matchingMetrics, nil, log)
	apMatchService := apmatchapp.NewAPMatchService(
		documentRepo, poLineRepo, apLinkRepo, resolver,
		apmatch.NewSuggester(cfg.Matching.APMaxSuggested),
		locker, eventBus, log,
		apmatchapp.WithMetrics(matchingMetrics),
	)
	aliasService := aliasapp.NewAliasService(aliasRepo, eventBus, matchingMetrics, cfg.Matching.AliasMinHits, nil, log)

	// HTTP handlers
	reconciliationHandler := handler.NewReconciliationHandler(reconciliationService, feedbackService)
	apMatchHandler := handler.NewAPMatchHandler(apMatchService, feedbackService)
	aliasHandler := handler.NewAliasHandler(aliasService)
	systemHandler := handler.NewSystemHandler(version, db)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	ginEngine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := ginEngine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack, outermost first:
	// request id, panic recovery, tracing, request logging, headers, body and time limits, metrics
	ginEngine.Use(middleware.RequestID())
	ginEngine.Use(logger.Recovery(log))
	if tracerProvider.IsEnabled() {
		ginEngine.Use(middleware.Tracing())
		ginEngine.Use(middleware.SpanErrorMarker())
	}
	ginEngine.Use(logger.GinMiddleware(log))
	ginEngine.Use(middleware.Secure())
	ginEngine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	ginEngine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	ginEngine.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
	if meterProvider.IsEnabled() {
		ginEngine.Use(middleware.HTTPMetrics(meter))
	}

	ginEngine.NoRoute(handler.NotFound)
	ginEngine.GET("/health", systemHandler.Health)
	ginEngine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:    cfg.Swagger.Enabled,
			AllowedIPs: cfg.Swagger.AllowedIPs,
		}),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	// Tenant resolution runs first inside /api/v1 so tracing, profiling and rate limits see the tenant
	apiMiddleware := []gin.HandlerFunc{middleware.TenantMiddleware()}
	if tracerProvider.IsEnabled() {
		apiMiddleware = append(apiMiddleware, middleware.TracingAttributeInjector())
	}
	profilingCfg := middleware.DefaultProfilingConfig()
	profilingCfg.Enabled = profiler.IsEnabled()
	apiMiddleware = append(apiMiddleware, middleware.ProfilingWithConfig(profilingCfg))
	if cfg.HTTP.RateLimitEnabled {
		apiMiddleware = append(apiMiddleware, middleware.RateLimit(
			middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	r := router.NewRouter(ginEngine,
		router.WithAPIVersion("v1"),
		router.WithMiddleware(apiMiddleware...),
	)
	r.Register(reconciliationHandler.Routes()).
		Register(apMatchHandler.Routes()).
		Register(aliasHandler.Routes()).
		Register(systemHandler.Routes())
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("base_path", r.BasePath()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newFeedbackArchive returns the S3 archive when storage is enabled. Without
// it exports are kept in memory and lost on restart.
func newFeedbackArchive(cfg *config.StorageConfig, log *zap.Logger) matchingapp.ArchiveStorage {
	if !cfg.Enabled {
		log.Warn("Object storage disabled, feedback exports are kept in memory")
		return storage.NewMemoryObjectStorage()
	}
	s3, err := storage.NewS3ObjectStorage(cfg, storage.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create object storage", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to prepare feedback bucket", zap.String("bucket", s3.GetBucket()), zap.Error(err))
	}
	log.Info("Feedback archive uses object storage", zap.String("bucket", s3.GetBucket()))
	return s3
}
