package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mattg1981/arb-one-migration/internal/alert"
	"github.com/mattg1981/arb-one-migration/internal/chain/evm"
	"github.com/mattg1981/arb-one-migration/internal/config"
	"github.com/mattg1981/arb-one-migration/internal/directory"
	"github.com/mattg1981/arb-one-migration/internal/feed"
	"github.com/mattg1981/arb-one-migration/internal/messaging"
	"github.com/mattg1981/arb-one-migration/internal/pipeline"
	"github.com/mattg1981/arb-one-migration/internal/pipeline/filter"
	"github.com/mattg1981/arb-one-migration/internal/pipeline/matcher"
	"github.com/mattg1981/arb-one-migration/internal/pipeline/notifier"
	"github.com/mattg1981/arb-one-migration/internal/pipeline/retry"
	"github.com/mattg1981/arb-one-migration/internal/pipeline/scheduler"
	"github.com/mattg1981/arb-one-migration/internal/store/postgres"
	"github.com/mattg1981/arb-one-migration/internal/template"
	"github.com/mattg1981/arb-one-migration/internal/tracing"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting shuttle",
		"source_rpc", cfg.Source.RPCURL,
		"settlement_rpc", cfg.Settlement.RPCURL,
		"collection_address", cfg.Watch.CollectionAddress,
		"token", cfg.Watch.TokenSymbol,
		"min_confirmations", cfg.Watch.MinConfirmations,
		"size_threshold", cfg.Policy.SizeThreshold,
		"age_threshold", cfg.Policy.AgeThreshold,
		"run_once", cfg.Runner.RunOnce,
	)

	shutdownTracing, err := tracing.Init(context.Background(), "shuttle", cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	templates, err := template.Load(cfg.TemplatesPath)
	if err != nil {
		logger.Error("failed to load message templates", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader, err := evm.NewReader(ctx, cfg.Source.RPCURL, logger)
	if err != nil {
		logger.Error("failed to connect to source chain", "error", err)
		os.Exit(1)
	}
	defer reader.Close()

	settler, err := evm.NewSettler(ctx, evm.SettlerConfig{
		RPCURL:             cfg.Settlement.RPCURL,
		PrivateKeyHex:      cfg.Settlement.PrivateKeyHex,
		TokenContract:      cfg.Settlement.TokenContract,
		DistributeContract: cfg.Settlement.DistributeContract,
		GasLimit:           cfg.Settlement.GasLimit,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to settlement chain", "error", err)
		os.Exit(1)
	}
	defer settler.Close()
	logger.Info("settlement account loaded", "account", settler.Account())

	deposits := postgres.NewDepositRepo(db)
	cursor := postgres.NewCursorRepo(db)

	alerter := buildAlerter(cfg, logger)

	var messenger messaging.Messenger = &messaging.Noop{}
	if cfg.Reddit.ClientID != "" {
		messenger = messaging.NewRedditMessenger(messaging.RedditConfig{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
			UserAgent:    cfg.Reddit.UserAgent,
		})
	} else {
		logger.Warn("no reddit credentials, depositor messages disabled")
	}

	rules := filter.NewRules(
		map[string]string{cfg.Watch.TokenContract: cfg.Watch.TokenSymbol},
		append(cfg.Watch.IgnoredSenders, cfg.Watch.CollectionAddress),
		cfg.Watch.CollectionAddress,
		cfg.Watch.MinConfirmations,
	)

	p := pipeline.New(
		pipeline.Config{
			WatchAddress: cfg.Watch.CollectionAddress,
			StartBlock:   cfg.Watch.StartBlock,
			Interval:     cfg.Runner.Interval,
			RunOnce:      cfg.Runner.RunOnce,
			Retry:        retry.Policy{Attempts: cfg.Retry.Attempts, Backoff: cfg.Retry.Backoff},
		},
		rules,
		feed.NewBlockscoutClient(cfg.Feed.BaseURL, cfg.Feed.APIKey),
		reader,
		deposits,
		cursor,
		matcher.New(deposits, directory.NewHTTPDirectory(cfg.Directory.URL), logger),
		scheduler.New(deposits, settler, alerter, scheduler.Policy{
			SizeThreshold: cfg.Policy.SizeThreshold,
			AgeThreshold:  cfg.Policy.AgeThreshold,
			MinDeposit:    cfg.Policy.MinDeposit,
			MinGasReserve: cfg.Policy.MinGasReserve,
		}, logger),
		notifier.New(deposits, messenger, templates, notifier.Config{
			TokenSymbol:    cfg.Watch.TokenSymbol,
			MinDeposit:     cfg.Policy.MinDeposit,
			SendsPerSecond: cfg.Policy.SendsPerSecond,
		}, logger),
		alerter,
		logger,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, logger)
	})

	g.Go(func() error {
		err := p.Run(gCtx)
		if cfg.Runner.RunOnce {
			// One-shot invocations should tear the process down when done.
			cancel()
		}
		return err
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shuttle exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shuttle shut down gracefully")
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
