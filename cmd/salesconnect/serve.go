package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/soochol/salesconnect/internal/api"
	"github.com/soochol/salesconnect/internal/audit"
	"github.com/soochol/salesconnect/internal/auth"
	"github.com/soochol/salesconnect/internal/config"
	"github.com/soochol/salesconnect/internal/crypto"
	"github.com/soochol/salesconnect/internal/db"
	"github.com/soochol/salesconnect/internal/metrics"
	"github.com/soochol/salesconnect/internal/notify"
	"github.com/soochol/salesconnect/internal/provider"
	"github.com/soochol/salesconnect/internal/repository"
	"github.com/soochol/salesconnect/internal/services"
	"github.com/soochol/salesconnect/internal/services/scheduler"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Server host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.SetDefault(newLogger(cfg.Logging))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo repository.IntegrationRepository
	var database *db.DB
	if cfg.Database.URL != "" {
		var err error
		database, err = db.New(ctx, cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		repo = repository.NewPersistentIntegrationRepository(database)
		slog.Info("using database store", "driver", cfg.Database.Driver)
	} else {
		repo = repository.NewMemoryIntegrationRepository()
		slog.Warn("no database configured, integration records are kept in memory")
	}

	sealer, err := crypto.NewStateSealerFromHex(cfg.OAuth.StateKey, cfg.OAuth.StateTTL)
	if err != nil {
		return fmt.Errorf("oauth state key: %w", err)
	}
	if sealer == nil {
		slog.Warn("oauth.state_key not set, state parameters are not sealed")
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	m := metrics.New("salesconnect")

	dispatcher := audit.NewDispatcher(cfg.Audit.BufferSize, cfg.Audit.DeliveryTimeout)
	dispatcher.SetObserver(m)
	retry := audit.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Audit.MaxRetries
	dispatcher.SetRetryPolicy(retry)
	closeSinks := subscribeSinks(dispatcher, cfg.Audit, database)
	dispatcher.Start()

	if database != nil && cfg.Audit.RetentionDays > 0 {
		retention, err := scheduler.NewRetentionScheduler(database, cfg.Audit.RetentionSchedule,
			time.Duration(cfg.Audit.RetentionDays)*24*time.Hour)
		if err != nil {
			return err
		}
		retention.Start()
		defer retention.Stop()
	}

	authn, err := auth.New(cfg.Auth.SessionSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	lifecycle := services.NewLifecycleManager(repo, registry, sealer, dispatcher, m)
	srv := api.NewServer(lifecycle, authn, repo)
	srv.SetMetrics(m)
	srv.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	srv.SetExtensionTokenTTL(cfg.Auth.ExtensionTokenTTL)
	if database != nil && cfg.Audit.Store {
		srv.SetAuditLog(database)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting salesconnect server", "addr", addr, "providers", len(cfg.Providers))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "err", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Warn("audit queue not drained", "err", err)
	}
	closeSinks()
	return nil
}

func buildRegistry(cfg *config.Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	for name, pc := range cfg.Providers {
		p, err := provider.New(name, provider.Settings{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			Scopes:       pc.Scopes,
			AuthURL:      pc.AuthURL,
			TokenURL:     pc.TokenURL,
			RedirectURL:  cfg.RedirectURL(name),
			AuthParams:   pc.AuthParams,
		})
		if err != nil {
			return nil, err
		}
		reg.Register(p)
		slog.Info("provider configured", "provider", name)
	}
	return reg, nil
}

// subscribeSinks attaches every configured audit sink and returns a func
// releasing sink resources.
func subscribeSinks(d *audit.Dispatcher, cfg config.AuditConfig, database *db.DB) func() {
	d.Subscribe(&audit.LogSink{Logger: slog.Default()})
	if database != nil && cfg.Store {
		d.Subscribe(&notify.StoreSink{Store: database})
	}
	if cfg.Slack != nil {
		d.Subscribe(&notify.SlackSink{WebhookURL: cfg.Slack.WebhookURL, Channel: cfg.Slack.Channel})
	}
	if cfg.Telegram != nil {
		d.Subscribe(&notify.TelegramSink{Token: cfg.Telegram.Token, ChatID: cfg.Telegram.ChatID})
	}
	if cfg.Kafka == nil {
		return func() {}
	}
	k := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	d.Subscribe(k)
	return func() {
		if err := k.Close(); err != nil {
			slog.Warn("kafka sink close", "err", err)
		}
	}
}
