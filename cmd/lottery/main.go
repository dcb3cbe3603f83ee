// Command lottery runs a single prize draw over the pooled below-minimum
// deposits and exits. It is meant to be invoked manually or from cron once
// the migration window closes.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mattg1981/arb-one-migration/internal/chain/evm"
	"github.com/mattg1981/arb-one-migration/internal/config"
	"github.com/mattg1981/arb-one-migration/internal/lottery"
	"github.com/mattg1981/arb-one-migration/internal/messaging"
	"github.com/mattg1981/arb-one-migration/internal/store/postgres"
	"github.com/mattg1981/arb-one-migration/internal/template"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

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

	templates, err := template.Load(cfg.TemplatesPath)
	if err != nil {
		logger.Error("failed to load message templates", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

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

	var messenger messaging.Messenger = &messaging.Noop{}
	if cfg.Reddit.ClientID != "" {
		messenger = messaging.NewRedditMessenger(messaging.RedditConfig{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
			UserAgent:    cfg.Reddit.UserAgent,
		})
	}

	l := lottery.New(
		postgres.NewDepositRepo(db),
		settler,
		messenger,
		templates,
		lottery.Config{
			TokenSymbol: cfg.Watch.TokenSymbol,
			MaxAmount:   cfg.Policy.MinDeposit,
		},
		logger,
	)

	result, err := l.Draw(ctx)
	if err != nil {
		logger.Error("lottery draw failed", "error", err)
		os.Exit(1)
	}
	if result == nil {
		logger.Info("no draw performed")
		return
	}

	logger.Info("lottery complete",
		"winner", result.Winner.Handle,
		"address", result.Winner.Address,
		"entrants", result.Entrants,
		"pool", result.Pool.String(),
		"tx_hash", result.TxHash,
	)
}
