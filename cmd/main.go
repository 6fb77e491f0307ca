package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/config"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/handler"
	"github.com/KasumiMercury/primind-remind-engine/internal/health"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/notifier"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/remote/httpstore"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/remote/pgstore"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/repository"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/syncrecorder"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/logging"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/metrics"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/middleware"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/dispatch"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/fallback"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/loop"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/records"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/reminder"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/schedtime"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/syncengine"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/trigger"
)

// Version is set via ldflags at build time
var Version = "dev"

const (
	defaultServiceName = "remind-engine"
	serviceModule      = logging.Module("remind-engine")
)

// identity describes where this process runs, for log and telemetry resources.
type identity struct {
	serviceName string
	revision    string
	env         logging.Environment
	projectID   string
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs, err := initObservability(ctx)
	if err != nil {
		slog.Error("failed to initialize observability", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", slog.String("error", err.Error()))
		}
	}()

	slog.SetDefault(obs.Logger())

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		return 1
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("configuration validation error", slog.String("error", err.Error()))
		return 1
	}

	httpMetrics, err := metrics.NewHTTPMetrics()
	if err != nil {
		slog.Error("failed to initialize HTTP metrics", slog.String("error", err.Error()))
		return 1
	}

	engineMetrics, err := metrics.NewEngineMetrics()
	if err != nil {
		slog.Error("failed to initialize engine metrics", slog.String("error", err.Error()))
		return 1
	}

	// InfluxDB for local, BigQuery for gcloud
	drainRecorder, err := syncrecorder.NewRecorder(ctx, syncrecorder.LoadConfig())
	if err != nil {
		slog.Error("failed to initialize drain recorder", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if err := drainRecorder.Close(); err != nil {
			slog.Warn("failed to close drain recorder", slog.String("error", err.Error()))
		}
	}()

	taskQueue, cleanup, err := initTaskQueue(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize task queue", slog.String("error", err.Error()))
		return 1
	}
	if cleanup != nil {
		defer func() {
			if err := cleanup(); err != nil {
				slog.Error("task queue cleanup error", slog.String("error", err.Error()))
			}
		}()
	}

	remoteStore, closeRemote, err := initRemoteStore(ctx, cfg.Remote)
	if err != nil {
		slog.Error("failed to initialize remote store", slog.String("error", err.Error()))
		return 1
	}
	defer closeRemote()

	redisClient, err := initRedis(ctx, cfg.Redis)
	if err != nil {
		slog.Error("failed to connect redis",
			slog.String("event", "redis.connect.fail"),
			slog.String("error", err.Error()),
		)
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}()

	slog.Info("redis connected",
		slog.String("addr", cfg.Redis.Addr),
	)

	clk := clock.Real()
	engineCfg := cfg.Engine

	errLog := errorlog.New(engineCfg.ErrorLogCapacity, repository.NewErrorLogRepository(redisClient), clk)
	if err := errLog.Restore(ctx); err != nil {
		slog.Warn("failed to restore error log", slog.String("error", err.Error()))
	}

	fallbackCtrl := fallback.NewController(engineCfg.Fallback, repository.NewHealthRepository(redisClient), errLog, clk)
	if err := fallbackCtrl.Load(ctx); err != nil {
		slog.Warn("failed to load fallback state", slog.String("error", err.Error()))
	}
	fallbackCtrl.OnChange(func(ctx context.Context, inFallback bool, reason string) {
		engineMetrics.RecordFallbackTransition(ctx, inFallback, reason)
	})

	executor := dispatch.NewExecutor(engineCfg.Workers, engineCfg.WorkerQueueSize, errLog)
	executor.Start(ctx)

	store := records.NewStore(repository.NewRecordRepository(redisClient), errLog, clk)
	scheduler := trigger.NewScheduler(engineCfg.Scheduler, taskQueue, fallbackCtrl, clk, executor, errLog, engineMetrics)
	fallbackCtrl.SetCanary(scheduler)
	engine := syncengine.NewEngine(
		engineCfg.Sync,
		repository.NewSyncQueueRepository(redisClient),
		store,
		remoteStore,
		clk,
		errLog,
		engineMetrics,
		drainRecorder,
	)

	reminderService := reminder.NewService(
		store,
		scheduler,
		engine,
		schedtime.NewValidator(clk, engineCfg.MinLead),
		notifier.New(cfg.NotifierURL),
		executor,
		errLog,
		clk,
	)
	scheduler.OnFire(ctx, reminderService.OnFire)
	engine.OnRearm(reminderService.Rearm)

	backgroundLoop := loop.New(engineCfg.Loop, engine, scheduler, store, fallbackCtrl, engine, reminderService.NextFire)
	reminderService.SetDrainNotifier(backgroundLoop.NotifyDrain)
	fallbackCtrl.OnChange(func(_ context.Context, inFallback bool, _ string) {
		if !inFallback {
			backgroundLoop.NotifyWake()
		}
	})

	// Setup router with observability middleware
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Gin(middleware.GinConfig{
		SkipPaths:   []string{"/health", "/health/live", "/health/ready"},
		Module:      serviceModule,
		TracerName:  "github.com/KasumiMercury/primind-remind-engine/internal/observability/middleware",
		HTTPMetrics: httpMetrics,
	}))
	r.Use(middleware.PanicRecoveryGin())

	healthChecker := health.NewChecker(redisClient, fallbackCtrl, Version)
	r.GET("/health/live", healthChecker.LiveHandler())
	r.GET("/health/ready", healthChecker.ReadyHandler())
	r.GET("/health", healthChecker.ReadyHandler())

	v1 := r.Group("/api/v1")
	handler.NewReminderHandler(reminderService).Register(v1)
	handler.NewTriggerHandler(scheduler).Register(v1)
	handler.NewSyncHandler(engine, backgroundLoop.NotifyDrain).Register(v1)
	handler.NewFallbackHandler(fallbackCtrl, errLog, backgroundLoop.NotifyWake).Register(v1)

	grpcPath, grpcHealth := healthChecker.GRPCHandler()
	root := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, grpcPath) {
			grpcHealth.ServeHTTP(w, req)
			return
		}
		r.ServeHTTP(w, req)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h2c.NewHandler(root, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server",
			slog.String("port", cfg.Port),
			slog.String("remote_backend", string(cfg.Remote.Backend)),
			slog.Duration("drain_interval", engineCfg.Loop.DrainInterval),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		backgroundLoop.Run(gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case sig := <-quit:
			slog.Info("shutdown signal received", slog.String("signal", sig.String()))
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		exitCode = 1
	}

	if err := executor.Stop(); err != nil && !errors.Is(err, dispatch.ErrExecutorStopped) {
		slog.Warn("executor stop error", slog.String("error", err.Error()))
	}
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := drainRecorder.Flush(flushCtx); err != nil {
		slog.Warn("failed to flush drain recorder", slog.String("error", err.Error()))
	}

	if exitCode == 0 {
		slog.Info("server exited properly")
	}
	return exitCode
}

func initObservability(ctx context.Context) (*observability.Resources, error) {
	id := platformIdentity()
	if e := os.Getenv("ENV"); e != "" {
		id.env = logging.Environment(e)
	}

	return observability.Init(ctx, observability.Config{
		ServiceInfo: logging.ServiceInfo{
			Name:     id.serviceName,
			Version:  Version,
			Revision: id.revision,
		},
		Environment:   id.env,
		GCPProjectID:  id.projectID,
		SamplingRate:  1.0,
		DefaultModule: serviceModule,
		LogLevel:      logging.ParseLevel(os.Getenv("LOG_LEVEL")),
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func initRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(cfg.Options())

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, err
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func initRemoteStore(ctx context.Context, cfg *config.RemoteConfig) (domain.RemoteStore, func(), error) {
	switch cfg.Backend {
	case config.RemoteBackendPostgres:
		store, err := pgstore.Open(ctx, cfg.DatabaseURI)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		slog.Info("remote store initialized", slog.String("type", "postgres"))
		return store, store.Close, nil
	default:
		slog.Info("remote store initialized",
			slog.String("type", "http"),
			slog.String("url", cfg.StoreURL),
		)
		return httpstore.NewClient(cfg.StoreURL), func() {}, nil
	}
}
