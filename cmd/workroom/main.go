package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/api"
	"github.com/workroomhq/workroom/pkg/apikeys"
	"github.com/workroomhq/workroom/pkg/billing"
	"github.com/workroomhq/workroom/pkg/config"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/plans"
	"github.com/workroomhq/workroom/pkg/sso"
	"github.com/workroomhq/workroom/pkg/storage/postgres"
	"github.com/workroomhq/workroom/pkg/webhooks"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	db, err := postgres.Open(ctx, postgres.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnLifetime: cfg.Database.ConnLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		return err
	}
	logger.Info("database ready")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	workspaceService := workspaces.NewPostgresService(db)
	keyService := apikeys.NewPostgresService(db)
	checker := plans.NewChecker(db)
	recorder := activity.NewPostgresRecorder(db)
	emitter := activity.NewEmitter(recorder)
	webhookStore := webhooks.NewPostgresStore(db)
	dispatcher := webhooks.NewDispatcher(ctx, webhookStore, logger, metrics)
	billingService := billing.NewPostgresService(db, workspaceService, cfg.Stripe.WebhookSecret, logger)

	services := &api.Services{
		Workspaces: workspaceService,
		APIKeys:    keyService,
		Plans:      checker,
		Billing:    billingService,
		Webhooks:   webhookStore,
		Dispatcher: dispatcher,
		Activity:   recorder,
		Emitter:    emitter,
	}

	// Sessions need Redis; OIDC is optional so deployments can run API-key only.
	if redisClient != nil {
		sessions := sso.NewSessionManager(redisClient, cfg.OIDC.CookieName)
		services.Sessions = sessions

		if cfg.OIDC.IssuerURL != "" {
			oidcClient, err := sso.NewOIDCClient(ctx, cfg.OIDC)
			if err != nil {
				return err
			}
			provisioner := sso.NewUserProvisioner(db, workspaceService, logger)
			services.SSO = sso.NewHandlers(oidcClient, sessions, provisioner, logger)
			logger.WithField("issuer", cfg.OIDC.IssuerURL).Info("sso login enabled")
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		removed, err := workspaceService.CleanupExpiredInvitations()
		if err != nil {
			logger.WithError(err).Error("failed to clean up expired invitations")
			return
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("cleaned up expired invitations")
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(cfg, services, redisClient, logger, metrics)
	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.LivenessHandler())
	healthMux.HandleFunc("/readyz", health.ReadinessHandler())
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("api server shutdown incomplete")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("health server shutdown incomplete")
		}
		if err := dispatcher.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			logger.WithError(err).Warn("webhook deliveries dropped during shutdown")
		}
		return nil
	})

	return group.Wait()
}
