package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/victor5516/raffles-api-core/internal/app"
	"github.com/victor5516/raffles-api-core/internal/clock"
	"github.com/victor5516/raffles-api-core/internal/config"
	"github.com/victor5516/raffles-api-core/internal/messaging"
	"github.com/victor5516/raffles-api-core/internal/objectstore"
	"github.com/victor5516/raffles-api-core/internal/obs"
	"github.com/victor5516/raffles-api-core/internal/storage/postgres"
	transporthttp "github.com/victor5516/raffles-api-core/internal/transport/http"
	"github.com/victor5516/raffles-api-core/migrations"
)

const (
	startupTimeout    = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply pending migrations and start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, envPath, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	if envPath == "" {
		log.Warning(".env not found in current or parent directories")
	} else {
		log.Infof("loaded env from %s", envPath)
	}

	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(tctx); err != nil {
			log.Warningf("tracer shutdown: %v", err)
		}
	}()

	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	applied, err := migrations.Apply(startupCtx, pool)
	cancel()
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, name := range applied {
		log.Infof("applied migration %s", name)
	}

	notifier, closeNotifier := buildNotifier(cfg, log)
	defer closeNotifier()

	store, err := buildScreenshotStore(ctx, cfg)
	if err != nil {
		return err
	}

	clk := clock.NewSystem()
	purchaseRepo := postgres.NewPurchaseRepository(pool, postgres.WithLockTimeout(cfg.LockTimeout))
	purchaseSvc := app.NewPurchaseService(purchaseRepo, clk,
		app.WithNotifier(notifier),
		app.WithScreenshotStore(store),
		app.WithLogger(log),
		app.WithNotifyTimeout(cfg.NotifyTimeout),
		app.WithDrawRetries(cfg.DrawRetries),
	)
	querySvc := app.NewPurchaseQueryService(purchaseRepo)
	adminSvc := app.NewAdminService(postgres.NewAdminRepository(pool), clk)

	if cfg.WebhookSecret == "" {
		log.Warning("WEBHOOK_SECRET not set, webhooks accept unauthenticated calls")
	}
	handler := transporthttp.NewRouter(transporthttp.RouterConfig{
		Purchases:      purchaseSvc,
		Queries:        querySvc,
		Admin:          adminSvc,
		DB:             pool,
		Log:            log,
		JWTSecret:      []byte(cfg.JWTSecret),
		WebhookSecret:  cfg.WebhookSecret,
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	log.Infof("api listening on :%s", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server error: %v", err)
			return err
		}
	case <-stopCtx.Done():
		log.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("server shutdown error: %v", err)
	}
	log.Info("server stopped")
	return nil
}

// newLogger logs to LOG_FILE when set; otherwise info lines go to stdout.
func newLogger(cfg config.Config) (*logger.Logger, error) {
	var out io.Writer = io.Discard
	verbose := cfg.LogVerbose
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	} else {
		verbose = true
	}
	return logger.Init(serviceName, verbose, false, out), nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

// buildNotifier wires every configured sink. Sinks that fail to start are
// logged and skipped so the API still serves purchases.
func buildNotifier(cfg config.Config, log *logger.Logger) (messaging.Fanout, func()) {
	var (
		sinks   messaging.Fanout
		closers []func() error
	)
	if cfg.AMQPURL != "" {
		pub, err := messaging.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Warningf("rabbitmq disabled: %v", err)
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, pub.Close)
			log.Infof("publishing purchase events to exchange %s", cfg.AMQPExchange)
		}
	}
	if cfg.TelegramToken != "" {
		if cfg.TelegramAdminChatID == 0 {
			log.Warning("TELEGRAM_ADMIN_CHAT_ID not set, telegram alerts disabled")
		} else if alerter, err := messaging.NewTelegramAlerter(cfg.TelegramToken, cfg.TelegramAdminChatID); err != nil {
			log.Warningf("telegram alerts disabled: %v", err)
		} else {
			sinks = append(sinks, alerter)
		}
	}
	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warningf("close notifier: %v", err)
			}
		}
	}
}

func buildScreenshotStore(ctx context.Context, cfg config.Config) (app.ScreenshotStore, error) {
	if cfg.S3Bucket != "" {
		store, err := objectstore.NewS3Store(ctx, cfg.S3Bucket, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return objectstore.NewLocalStore(cfg.ScreenshotDir), nil
}
