// Package main runs the camera auto-switching HTTP server with WebSocket dashboards and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/aura-webinar/autoswitch/config"
	"github.com/aura-webinar/autoswitch/internal/archive"
	"github.com/aura-webinar/autoswitch/internal/auth"
	"github.com/aura-webinar/autoswitch/internal/decision"
	"github.com/aura-webinar/autoswitch/internal/eventlog"
	"github.com/aura-webinar/autoswitch/internal/middleware"
	"github.com/aura-webinar/autoswitch/internal/observe"
	"github.com/aura-webinar/autoswitch/internal/realtime"
	"github.com/aura-webinar/autoswitch/internal/sessions"
	"github.com/aura-webinar/autoswitch/internal/telemetry"
	"github.com/aura-webinar/autoswitch/pkg/database"
	"github.com/aura-webinar/autoswitch/pkg/queue"
	"github.com/aura-webinar/autoswitch/pkg/redis"
	"github.com/aura-webinar/autoswitch/pkg/response"
	"github.com/aura-webinar/autoswitch/pkg/storage"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		newLogger("info").Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Observability.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var met *observe.Metrics
	shutdownMetrics := func(context.Context) error { return nil }
	if cfg.Observability.MetricsEnabled {
		met, shutdownMetrics, err = observe.InitProvider(ctx, cfg.Observability.ServiceName, version)
		if err != nil {
			logger.Fatal("metrics", zap.Error(err))
		}
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, s3Config(cfg), logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	if err := auth.EnsureKey(ctx, authRepo, "bootstrap-operator", auth.RoleOperator, cfg.Auth.OperatorKey); err != nil {
		logger.Fatal("store operator key", zap.Error(err))
	}
	if err := auth.EnsureKey(ctx, authRepo, "bootstrap-analyzer", auth.RoleAnalyzer, cfg.Auth.AnalyzerKey); err != nil {
		logger.Fatal("store analyzer key", zap.Error(err))
	}

	// Realtime fan-out
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Event log persistence
	eventRepo := eventlog.NewRepository(pool)
	eventWriter := eventlog.NewWriter(eventRepo, logger, cfg.Observability.EventBuffer,
		cfg.Observability.EventBatchSize, cfg.Observability.EventFlushPeriod)

	// Sessions
	jobQueue := queue.NewQueue(rdb.Client, logger)
	manager, err := sessions.NewManager(settings(cfg), sessions.Dependencies{
		Logger:      logger,
		Metrics:     met,
		Broadcaster: hub,
		LogSink:     eventWriter,
		Store:       sessions.NewRepository(pool),
		Archiver:    archive.NewEnqueuer(jobQueue),
		Layouts:     cfg.Layouts,
	})
	if err != nil {
		logger.Fatal("session manager", zap.Error(err))
	}
	sessionHandler := sessions.NewHandler(manager, eventRepo, logger)

	wsValidate := func(token string) (subject, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.Subject, claims.Role, nil
	}
	wsSnapshot := func(id uuid.UUID) (interface{}, error) {
		s, err := manager.Get(id)
		if err != nil {
			return nil, err
		}
		return s.Snapshot(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	if met != nil {
		router.Use(observe.GinMiddleware(met))
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.GET("/health", health(pool, rdb, manager))
	router.POST("/auth/token", authHandler.Token)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		sessionHandler.Register(api,
			middleware.RequireRole(auth.RoleOperator),
			middleware.RequireRole(auth.RoleOperator, auth.RoleAnalyzer))
		if s3Client != nil {
			api.GET("/sessions/:id/archive", archive.NewHandler(s3Client, logger).Get)
		}
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, wsValidate, wsSnapshot))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	g, gctx := errgroup.WithContext(bgCtx)
	g.Go(func() error { return eventWriter.Run(gctx) })
	g.Go(func() error {
		manager.RunJanitor(gctx, cfg.Switching.JanitorInterval)
		return nil
	})

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.Bool("simulation", cfg.Telemetry.Simulation))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// Sessions stop first so their final log entries reach the writer before it drains.
	manager.Shutdown(shutdownCtx)
	bgCancel()
	if err := g.Wait(); err != nil {
		logger.Error("background tasks", zap.Error(err))
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		logger.Error("metrics shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// health reports each backing dependency; any failure answers 503.
func health(pool *pgxpool.Pool, rdb *redis.Client, manager *sessions.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		report := gin.H{"status": "ok", "postgres": "ok", "redis": "ok", "sessions": len(manager.List())}
		healthy := true
		if err := pool.Ping(ctx); err != nil {
			report["postgres"] = err.Error()
			healthy = false
		}
		if err := rdb.Healthy(ctx); err != nil {
			report["redis"] = err.Error()
			healthy = false
		}
		if !healthy {
			report["status"] = "degraded"
			response.Unavailable(c, report)
			return
		}
		response.OK(c, report)
	}
}

func settings(cfg *config.Config) sessions.Settings {
	s := sessions.DefaultSettings()
	engine := decision.DefaultConfig()
	engine.AudioWeight = cfg.Switching.AudioWeight
	engine.EngagementWeight = cfg.Switching.EngagementWeight
	engine.SilenceTimeout = cfg.Switching.SilenceTimeout
	engine.FallbackCooldown = cfg.Switching.FallbackCooldown
	engine.FallbackConfidence = cfg.Switching.FallbackConfidence
	engine.ManualHold = cfg.Switching.ManualHold
	s.Engine = engine
	s.Windows = telemetry.WindowConfig{
		AudioSamples:      cfg.Telemetry.AudioWindow,
		EngagementSamples: cfg.Telemetry.EngagementWindow,
		MaxAge:            cfg.Telemetry.WindowMaxAge,
	}
	s.Transition = cfg.Switching.Transition
	s.EventLogRetention = cfg.Switching.EventLogRetention
	s.SessionRetention = cfg.Switching.SessionRetention
	s.Simulation = cfg.Telemetry.Simulation
	s.SimulationSeed = cfg.Telemetry.SimulationSeed
	s.AudioInterval = cfg.Telemetry.AudioInterval
	s.EngagementInterval = cfg.Telemetry.EngagementInterval
	return s
}

func s3Config(cfg *config.Config) storage.S3Config {
	return storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ArchiveBucket:        cfg.AWS.ArchiveBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		config.Level = lvl
	}
	logger, _ := config.Build()
	return logger
}
