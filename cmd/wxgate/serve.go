package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/wxgate/internal/api"
	"github.com/mattjoyce/wxgate/internal/audit"
	"github.com/mattjoyce/wxgate/internal/center"
	"github.com/mattjoyce/wxgate/internal/config"
	"github.com/mattjoyce/wxgate/internal/dedup"
	"github.com/mattjoyce/wxgate/internal/echobot"
	"github.com/mattjoyce/wxgate/internal/events"
	"github.com/mattjoyce/wxgate/internal/janitor"
	"github.com/mattjoyce/wxgate/internal/lock"
	"github.com/mattjoyce/wxgate/internal/log"
	"github.com/mattjoyce/wxgate/internal/msgcrypt"
	"github.com/mattjoyce/wxgate/internal/storage"
	"github.com/mattjoyce/wxgate/internal/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the callback gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log.Setup(cfg.Service.LogLevel)
			logger := log.WithComponent("main")
			logger.Info("wxgate starting", "version", version, "config", path)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			gw, err := newGateway(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			defer gw.Close()

			logger.Info("wxgate running (press Ctrl+C to stop)", "endpoints", len(gw.centers))
			if err := gw.Run(ctx); err != nil {
				logger.Error("component failed", "error", err)
				return err
			}
			logger.Info("wxgate stopped")
			return nil
		},
	}
}

// gateway is every long-running component of one serve process.
type gateway struct {
	logger    *slog.Logger
	db        *sql.DB
	pidLock   *lock.PIDLock
	hub       *events.Hub
	centers   []*center.Center
	webhook   *webhook.Server
	api       *api.Server
	janitor   *janitor.Janitor
	publisher *audit.AMQPPublisher
}

// dialAMQP connects the audit sink; tests replace it.
var dialAMQP = func(url, exchange string, logger *slog.Logger) (audit.Sink, error) {
	return audit.DialAMQP(url, exchange, logger)
}

// needsDB reports whether cfg uses the SQLite state database.
func needsDB(cfg *config.Config) bool {
	return cfg.Dedup.Backend == config.BackendSQLite || cfg.Audit.Enabled
}

func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gw *gateway, err error) {
	if logger == nil {
		logger = log.Get()
	}
	gw = &gateway{
		logger: logger,
		hub:    events.NewHub(cfg.Audit.HubCapacity),
	}
	defer func() {
		if err != nil {
			gw.Close()
			gw = nil
		}
	}()

	if needsDB(cfg) {
		if cfg.State.Path != storage.MemoryPath {
			gw.pidLock, err = lock.AcquirePIDLock(lock.PathFor(cfg.State.Path))
			if err != nil {
				return gw, fmt.Errorf("another instance may be running: %w", err)
			}
		}
		gw.db, err = storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return gw, fmt.Errorf("open state database: %w", err)
		}
		logger.Info("database opened", "path", cfg.State.Path)
	}

	var messageLog *audit.MessageLog
	if cfg.Audit.Enabled {
		messageLog = audit.NewMessageLog(gw.db, log.WithComponent("message_log"))
	}
	if cfg.Audit.AMQP.URL != "" {
		sink, err := dialAMQP(cfg.Audit.AMQP.URL, cfg.Audit.AMQP.Exchange, log.WithComponent("amqp"))
		if err != nil {
			return gw, err
		}
		gw.publisher = audit.NewAMQPPublisher(sink, cfg.Service.Name, cfg.Audit.AMQP.Buffer, log.WithComponent("amqp"))
		logger.Info("amqp publishing enabled", "exchange", cfg.Audit.AMQP.Exchange)
	}

	webhookConfig, err := webhook.FromGlobalConfig(cfg.Webhooks)
	if err != nil {
		return gw, err
	}
	webhookConfig.ShutdownTimeout = cfg.Service.ShutdownTimeout

	bot := echobot.New(echobot.Config{
		Welcome: cfg.Echobot.Welcome,
		Prefix:  cfg.Echobot.Prefix,
		Clicks:  cfg.Echobot.Clicks,
	})

	apps := make([]api.App, 0, len(cfg.Webhooks.Endpoints))
	for i, ep := range cfg.Webhooks.Endpoints {
		appLogger := log.WithApp(ep.Name)

		mode, err := msgcrypt.ParseMode(ep.Mode)
		if err != nil {
			return gw, fmt.Errorf("endpoint %s: %w", ep.Name, err)
		}
		cipher, err := msgcrypt.New(msgcrypt.Config{
			AppID:          ep.AppID,
			Token:          ep.Token,
			EncodingAESKey: ep.EncodingAESKey,
			Mode:           mode,
		})
		if err != nil {
			return gw, fmt.Errorf("endpoint %s: %w", ep.Name, err)
		}

		var cache dedup.ReplyCache
		if cfg.Dedup.Backend == config.BackendSQLite {
			cache = dedup.NewSQLiteCache(gw.db, ep.Name, cfg.Dedup.Retention)
		} else {
			cache = dedup.NewMemoryCache(cfg.Dedup.MaxEntries, cfg.Dedup.Retention)
		}

		observers := []center.Observer{
			audit.NewLogObserver(appLogger),
			audit.NewHubObserver(gw.hub),
		}
		if messageLog != nil {
			observers = append(observers, messageLog)
		}
		if gw.publisher != nil {
			observers = append(observers, gw.publisher)
		}

		c := center.New(ep.Name, cipher, dedup.NewStore(cache, appLogger), bot, appLogger, observers...)
		gw.centers = append(gw.centers, c)
		apps = append(apps, c)

		webhookConfig.Endpoints[i].Processor = c
		webhookConfig.Endpoints[i].Verifier = cipher
		logger.Info("endpoint registered", "app", ep.Name, "path", ep.Path, "mode", mode)
	}

	gw.webhook, err = webhook.New(webhookConfig, log.Get())
	if err != nil {
		return gw, err
	}

	if cfg.API.Enabled {
		var reader api.MessageReader
		if messageLog != nil {
			reader = messageLog
		}
		gw.api = api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey}, apps, gw.hub, reader, log.Get())
	}

	if gw.db != nil {
		gw.janitor, err = janitor.New(cfg.Audit.Sweep, gw.hub, log.Get())
		if err != nil {
			return gw, err
		}
		if cfg.Dedup.Backend == config.BackendSQLite {
			gw.janitor.Add("reply_cache", janitor.ReplyCache(gw.db))
		}
		if messageLog != nil {
			gw.janitor.Add("message_log", janitor.Retain(messageLog, cfg.Audit.Retention))
		}
	}

	return gw, nil
}

// Run starts every component and blocks until ctx ends or one of them fails.
func (g *gateway) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return g.webhook.Start(ctx) })
	if g.api != nil {
		eg.Go(func() error { return g.api.Start(ctx) })
	}
	if g.janitor != nil && g.janitor.Len() > 0 {
		eg.Go(func() error { return g.janitor.Run(ctx) })
	}
	if g.publisher != nil {
		eg.Go(func() error { return g.publisher.Run(ctx) })
	}

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the broker connection, the database and the PID lock. It is
// safe after Run has returned and on a partly built gateway.
func (g *gateway) Close() {
	if g.publisher != nil {
		g.publisher.Close()
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			g.logger.Warn("close database", "error", err)
		}
		g.db = nil
	}
	if g.pidLock != nil {
		_ = g.pidLock.Release()
		g.pidLock = nil
	}
}
