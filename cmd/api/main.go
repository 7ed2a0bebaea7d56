package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/official-relay/internal/api/http"
	"github.com/spec-kit/official-relay/internal/api/http/handlers"
	"github.com/spec-kit/official-relay/internal/auth"
	"github.com/spec-kit/official-relay/internal/config"
	"github.com/spec-kit/official-relay/internal/events"
	"github.com/spec-kit/official-relay/internal/observability"
	"github.com/spec-kit/official-relay/internal/official"
	"github.com/spec-kit/official-relay/internal/persistence"
	"github.com/spec-kit/official-relay/internal/repository"
	"github.com/spec-kit/official-relay/internal/service"
	"github.com/spec-kit/official-relay/internal/worker"
	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	credentialsErr := cfg.Official.ValidateCredentials()
	if credentialsErr != nil {
		logger.Warn("proxy endpoints disabled", zap.Error(credentialsErr))
	}
	handshakeErr := cfg.Official.ValidateHandshake()
	if handshakeErr != nil {
		logger.Warn("callback handshake will always fail", zap.Error(handshakeErr))
	}

	store, pg, storeErr := openStore(ctx, cfg, logger)
	if storeErr != nil {
		if !apperrors.IsCode(storeErr, "CONFIG_MISSING") {
			logger.Fatal("failed to open binding store", zap.Error(storeErr))
		}
		logger.Warn("binding workflow disabled", zap.Error(storeErr))
	}
	defer pg.Close()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var shared official.SharedCredentialStore
	if redis.Enabled() {
		shared = official.NewRedisCredentialStore(redis.Client, cfg.Store.EnvID, cfg.Official.AppID)
	}

	client := official.NewClient(cfg.Official, metrics)
	credentials := official.NewCredentialCache(client, official.CacheOptions{
		Margin:   cfg.Official.TokenMargin(),
		Fallback: cfg.Official.TokenFallback(),
		Shared:   shared,
		Logger:   logger.Named("credentials"),
		Metrics:  metrics,
	})

	officialService := service.NewOfficialService(cfg.Official, service.OfficialDependencies{
		Client:      client,
		Credentials: credentials,
	}, logger)

	dispatcher := events.NewInMemoryDispatcher()
	bindingService := service.NewBindingService(cfg.Official, service.BindingDependencies{
		Store:      store,
		StoreErr:   storeErr,
		Official:   officialService,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	}, logger.Named("binding"))

	notificationService := service.NewNotificationService(officialService, logger.Named("notification"), cfg.Notification)
	worker.StartNotificationWorker(ctx, dispatcher, notificationService, cfg.Notification.QueueSize, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.ServiceTokenTTLMins)
	if tokens == nil {
		logger.Warn("API_JWT_SECRET not set; /api/official is unauthenticated")
	}

	app := httptransport.NewApp(httptransport.AppConfig{
		Name:           cfg.App.Name,
		RequestTimeout: cfg.App.RequestTimeout(),
		Logger:         logger,
		Metrics:        metrics,
	}, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, map[string]error{
			"proxy":     credentialsErr,
			"handshake": handshakeErr,
			"binding":   storeErr,
		}),
		Callback:       handlers.NewCallbackHandler(cfg.Official.Token, bindingService, logger),
		Official:       handlers.NewOfficialHandler(officialService),
		Binding:        handlers.NewBindingHandler(bindingService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       registry,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.ShutdownWithTimeout(10 * time.Second)
}

// openStore returns the binding store selected by STORE_DRIVER. A nil store with
// a CONFIG_MISSING error disables binding without stopping the relay.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.BindingStore, *persistence.Postgres, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn("using in-memory binding store; bindings are lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}
	if err := cfg.Store.Validate(cfg.Postgres); err != nil {
		return nil, nil, err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.Store.EnvID, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			pg.Close()
			return nil, nil, err
		}
	}
	return repository.NewPostgresStore(pg.PoolHandle()), pg, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
