package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/auth"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/livesync"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/services"
)

const listenRetry = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	instanceID := uuid.NewString()
	logger = logger.With("instance_id", instanceID)
	logger.Info("Starting fintrack", "version", version, log.FieldBackend, cfg.DataBackend, "port", cfg.Port)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.Open(ctx, bcfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	revoked, rateCounter, closeShared, err := newSharedState(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeShared()

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		logger.Warn("JWT_SECRET not set; sessions will not survive a restart")
	}
	authSvc := auth.NewService(res.Store, revoked, auth.NewLogMailer(logger), auth.Config{
		Secret:     []byte(secret),
		SessionTTL: cfg.SessionTTL,
		BaseURL:    cfg.BaseURL,
	}, logger)

	hub := livesync.NewHub(res.Store, logger)

	var (
		publisher  services.EventPublisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable; transaction events disabled", log.FieldError, err)
		} else {
			publisher = amqpClient
			defer amqpClient.Close()
		}
	}

	txs := services.NewTransactionService(res.Store, hub, publisher, instanceID, logger)

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:            ":" + cfg.Port,
		BaseURL:         cfg.BaseURL,
		CookieSecure:    cfg.CookieSecure,
		CurrencySymbol:  cfg.CurrencySymbol,
		CacheVersion:    cfg.CacheVersion,
		RateLimitPerMin: cfg.RateLimitPerMin,
		SessionTTL:      cfg.SessionTTL,
	}, apphttp.Deps{
		Store:        res.Store,
		Pinger:       res.Store,
		Auth:         authSvc,
		Hub:          hub,
		Transactions: txs,
		RateCounter:  rateCounter,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, done := cli.GracefulShutdown(gctx, logger, cfg.ShutdownGracetime, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		hub.Close()
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ListenChanges(runCtx, instanceID, func(ctx context.Context, ev *amqp.TransactionEvent) {
				hub.Notify(ctx, ev.UserID)
			})
			return ignoreCanceled(err)
		})
	}

	if res.Changes != nil {
		g.Go(func() error {
			return ignoreCanceled(res.Changes.Listen(runCtx, listenRetry, hub.Notify))
		})
	}

	err = g.Wait()
	<-done
	if err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// newSharedState keeps revoked sessions and rate-limit windows in Redis
// when REDIS_URL is set so several servers agree on both. A nil counter
// means per-process windows.
func newSharedState(ctx context.Context, cfg *config.Config, logger *log.Logger) (auth.Revocations, ratelimit.Counter, func(), error) {
	if cfg.RedisURL == "" {
		return auth.NewMemoryRevocations(), nil, func() {}, nil
	}
	r, err := auth.NewRedisRevocations(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("Session revocations and rate limits stored in Redis")
	return r, ratelimit.NewRedisCounter(r.Client(), "fintrack:ratelimit:"), func() { _ = r.Close() }, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
