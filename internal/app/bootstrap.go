package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"remora/internal/analyzer"
	"remora/internal/config"
	"remora/internal/core"
	"remora/internal/exchange"
	"remora/internal/exchange/bybit"
	"remora/internal/execution"
	"remora/internal/feed"
	"remora/internal/llm/factory"
	"remora/internal/metrics"
	"remora/internal/notifier"
	"remora/internal/notifier/email"
	"remora/internal/notifier/telegram"
	"remora/internal/notifier/webhook"
	"remora/internal/notifier/whatsapp"
	"remora/internal/storage/archive"
	"remora/internal/storage/snapshot"
	strategystore "remora/internal/storage/strategy"
	"remora/internal/strategy"
)

// Bootstrap assembles an App from configuration: stores, feed, oracle,
// exchange, archive and alert channels. Absent optional config (LLM
// provider, exchange credentials) degrades the feature with a warning;
// malformed config fails startup.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := feed.NewHTTP(cfg.Feed.BaseURL)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("feed: %w", err))
	}

	var closers []func() error
	fail := func(err error) (*App, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	snapshots, err := newSnapshotStore(cfg.Storage.Snapshots)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, snapshots.Close)

	strategies, err := OpenStrategyStore(ctx, cfg.Storage.Strategies)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, strategies.Close)

	lifecycle := strategy.NewManager(strategies, logger)

	var oracle *analyzer.Analyzer
	if cfg.LLM.Provider != "" {
		provider, err := factory.New(cfg.LLM)
		if err != nil {
			return fail(core.WrapError(core.ErrConfigInvalid, err))
		}
		oracle = analyzer.New(provider, snapshots, logger)
		logger.Info("oracle configured", zap.String("provider", cfg.LLM.Provider))
	} else {
		logger.Warn("no LLM provider configured, running signal scoring only")
	}

	var venue exchange.Client
	var exec *execution.Engine
	if cfg.Exchange.APIKey != "" && cfg.Exchange.APISecret != "" {
		venue = bybit.NewClient(bybit.Config{
			APIKey:     cfg.Exchange.APIKey,
			APISecret:  cfg.Exchange.APISecret,
			Testnet:    cfg.Exchange.Testnet,
			RecvWindow: cfg.Exchange.RecvWindow,
			Category:   cfg.Exchange.Category,
		}, logger)
		exec = execution.NewEngine(execution.Config{
			DefaultOrderUSDT: cfg.Execution.DefaultOrderUSDT,
			TimeInForce:      cfg.Execution.TimeInForce,
			QuoteAsset:       cfg.Execution.QuoteAsset,
		}, venue, lifecycle, logger)
		logger.Info("exchange configured",
			zap.String("venue", venue.Name()),
			zap.Bool("testnet", cfg.Exchange.Testnet),
		)
	} else {
		logger.Warn("no exchange credentials configured, positions and execution disabled")
	}

	archiver, err := newArchiver(cfg.Storage.Cold)
	if err != nil {
		return fail(err)
	}
	if archiver == nil {
		logger.Warn("cold storage disabled, cycle reports will not be archived")
	}

	notifiers := notifier.NewRegistry()
	if err := registerNotifiers(notifiers, cfg.Notifiers, logger); err != nil {
		return fail(err)
	}

	a := New(cfg, Deps{
		Feed:      f,
		Snapshots: snapshots,
		Lifecycle: lifecycle,
		Analyzer:  oracle,
		Exchange:  venue,
		Execution: exec,
		Archiver:  archiver,
		Notifiers: notifiers,
		Metrics:   metrics.NewRegistry(),
	}, logger)
	a.closers = closers
	return a, nil
}

func newSnapshotStore(cfg config.SnapshotStoreConfig) (snapshot.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return snapshot.NewMemoryStore(), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, core.Errorf(core.ErrConfigMissing, "snapshots path required for sqlite")
		}
		return snapshot.NewSQLiteStore(cfg.Path)
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown snapshots driver %q", cfg.Driver)
	}
}

// OpenStrategyStore opens the strategy store named by cfg. The CLI uses it
// directly for read-only commands that do not need the full pipeline.
func OpenStrategyStore(ctx context.Context, cfg config.StrategyStoreConfig) (strategystore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return strategystore.NewMemoryStore(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, core.Errorf(core.ErrConfigMissing, "strategies dsn required for postgres")
		}
		return strategystore.NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown strategies driver %q", cfg.Driver)
	}
}

func newArchiver(cfg config.ColdStorageConfig) (*archive.Archiver, error) {
	switch cfg.Type {
	case "", "localfs":
		if cfg.Path == "" {
			return nil, nil
		}
		backend, err := archive.NewLocalFS(cfg.Path)
		if err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, err)
		}
		return archive.NewArchiver(backend), nil
	case "s3":
		backend, err := archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, err)
		}
		return archive.NewArchiver(backend), nil
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown cold storage type %q", cfg.Type)
	}
}

// registerNotifiers builds each enabled alert channel. The map key selects
// the channel type, matching the config file layout.
func registerNotifiers(reg *notifier.Registry, cfgs map[string]config.NotifierConfig, logger *zap.Logger) error {
	for name, nc := range cfgs {
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		switch name {
		case "telegram":
			if nc.BotToken == "" || nc.ChatID == "" {
				return core.Errorf(core.ErrConfigMissing, "telegram notifier needs bot_token and chat_id")
			}
			n = telegram.New(nc.BotToken, nc.ChatID)
		case "whatsapp":
			if nc.Phone == "" || nc.APIKey == "" {
				return core.Errorf(core.ErrConfigMissing, "whatsapp notifier needs phone and api_key")
			}
			n = whatsapp.New(nc.Phone, nc.APIKey)
		case "webhook":
			if nc.URL == "" {
				return core.Errorf(core.ErrConfigMissing, "webhook notifier needs url")
			}
			n = webhook.New(nc.URL, nc.Headers)
		case "email":
			if nc.Host == "" || nc.From == "" || len(nc.To) == 0 {
				return core.Errorf(core.ErrConfigMissing, "email notifier needs host, from and to")
			}
			n = email.New(nc.Host, nc.Port, nc.Username, nc.Password, nc.From, nc.To)
		default:
			logger.Warn("unknown notifier type, skipping", zap.String("name", name))
			continue
		}

		if err := reg.Register(n); err != nil {
			return err
		}
		logger.Info("notifier registered", zap.String("channel", name))
	}
	return nil
}
