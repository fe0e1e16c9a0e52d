package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/teamsbridge/internal/agent"
	"github.com/memohai/teamsbridge/internal/commands"
	"github.com/memohai/teamsbridge/internal/config"
	"github.com/memohai/teamsbridge/internal/handlers"
	"github.com/memohai/teamsbridge/internal/logger"
	"github.com/memohai/teamsbridge/internal/notify"
	"github.com/memohai/teamsbridge/internal/server"
	"github.com/memohai/teamsbridge/internal/session"
	"github.com/memohai/teamsbridge/internal/teams"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideVerifier,
			provideSessionStore,
			provideAgentClient,
			provideCommandRouter,
			provideChannelRegistry,
			provideSender,
			notify.NewCardRenderer,
			provideNotifyService,
			provideWebhookHandler,
			provideNotifyHandler,
			provideServers,
		),
		fx.Invoke(
			startServers,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideVerifier(cfg config.Config, log *slog.Logger) *teams.Verifier {
	return teams.VerifierFromConfig(cfg.Receiver.HMACSecret, log)
}

func provideSessionStore(cfg config.Config) session.Store {
	return session.NewMemoryStore(cfg.Session.TTL(), cfg.Session.MaxMessages)
}

func provideAgentClient(cfg config.Config, log *slog.Logger) *agent.Client {
	return agent.NewClient(
		cfg.Agent.ResolvedBaseURL(),
		cfg.Agent.APIKey,
		cfg.Agent.Timeout(),
		log,
		agent.WithMaxRetries(cfg.Agent.MaxRetries),
		agent.WithSafetyMargin(cfg.Agent.SafetyMargin()),
	)
}

func provideCommandRouter(store session.Store, client *agent.Client, log *slog.Logger) *commands.Router {
	return commands.NewRouter(store, client, log)
}

func provideChannelRegistry(cfg config.Config, log *slog.Logger) *notify.Registry {
	return notify.NewRegistry(cfg.Channels, log)
}

func provideSender(cfg config.Config, log *slog.Logger) notify.Sender {
	return notify.NewWebhookSender(cfg.Notifier.SendTimeout(), cfg.Notifier.MaxAttempts, cfg.Notifier.BaseDelay(), log)
}

func provideNotifyService(sender notify.Sender, registry *notify.Registry, cards *notify.CardRenderer, log *slog.Logger) *notify.Service {
	return notify.NewService(sender, registry, cards, log)
}

func provideWebhookHandler(cfg config.Config, verifier *teams.Verifier, router *commands.Router, client *agent.Client, store session.Store, log *slog.Logger) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(verifier, router, client, store, cfg.Agent.Timeout(), cfg.Environment, log)
}

func provideNotifyHandler(service *notify.Service, registry *notify.Registry, cfg config.Config, log *slog.Logger) *handlers.NotifyHandler {
	return handlers.NewNotifyHandler(service, registry, cfg.Notifier.APIKey, log)
}

// appServers bundles the two listeners: the platform-facing receiver and
// the internal notification API.
type appServers struct {
	receiver *server.Server
	notifier *server.Server
}

func provideServers(cfg config.Config, log *slog.Logger, webhook *handlers.WebhookHandler, notifier *handlers.NotifyHandler) *appServers {
	return &appServers{
		receiver: server.New("receiver", cfg.Receiver.Addr, log, webhook),
		notifier: server.New("notifier", cfg.Notifier.Addr, log, notifier),
	}
}

func startServers(lc fx.Lifecycle, log *slog.Logger, srvs *appServers, shutdowner fx.Shutdowner) {
	start := func(srv *server.Server) {
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("server failed", slog.Any("error", err))
				_ = shutdowner.Shutdown()
			}
		}()
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			start(srvs.receiver)
			start(srvs.notifier)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var errs []error
			if err := srvs.receiver.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, fmt.Errorf("receiver stop: %w", err))
			}
			if err := srvs.notifier.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, fmt.Errorf("notifier stop: %w", err))
			}
			return errors.Join(errs...)
		},
	})
}
