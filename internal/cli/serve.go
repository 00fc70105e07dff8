package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"casbin-mongodb-adapter/internal/adapters/driven/persistence/instrumented"
	"casbin-mongodb-adapter/internal/adapters/driven/persistence/mongodb"
	rediswatcher "casbin-mongodb-adapter/internal/adapters/driven/watcher/redis"
	httpapi "casbin-mongodb-adapter/internal/adapters/driving/http"
	"casbin-mongodb-adapter/internal/config"
	"casbin-mongodb-adapter/internal/core/ports/driven"
	"casbin-mongodb-adapter/internal/core/services"
	"casbin-mongodb-adapter/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the policy API backed by the configured store.

Examples:
  # Serve with config file settings
  casbin-mongo serve

  # Serve against a local MongoDB on a different port
  casbin-mongo serve --addr :9090 --mongodb.host 10.0.0.5`,
	RunE: runServe,
}

func init() {
	fs := serveCmd.Flags()
	fs.String("addr", "", "HTTP listen address (overrides server.http_addr)")
	fs.String("storage-driver", "", "storage driver: mongodb, sqlite or memory")
	fs.String("model", "", "casbin model file (default: built-in RBAC with domains)")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	mongodb.NewOptions().AddFlags(fs)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	defer closeStore()

	repo := instrumented.NewRuleRepository(store, instrumented.NewMetrics(reg))
	adapter := newPolicyAdapter(repo, cfg, log)

	m, err := services.LoadModel(cfg.Model.Path)
	if err != nil {
		return err
	}

	svcCfg := services.AuthorizationServiceConfig{
		Model:   m,
		Adapter: adapter,
		Health:  repo,
		Logger:  log,
	}
	if cfg.Watcher.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Watcher.Addr,
			Password: cfg.Watcher.Password,
			DB:       cfg.Watcher.DB,
		})
		defer rdb.Close()

		w := rediswatcher.NewWatcher(rdb,
			rediswatcher.WithChannel(cfg.Watcher.Channel),
			rediswatcher.WithLogger(log),
		)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start policy watcher: %w", err)
		}
		defer w.Close()
		svcCfg.Watcher = w
		log.Info("policy watcher started", "addr", cfg.Watcher.Addr, "channel", cfg.Watcher.Channel, "instance", w.InstanceID())
	}

	service, err := services.NewAuthorizationServiceImpl(svcCfg)
	if err != nil {
		return fmt.Errorf("failed to create authorization service: %w", err)
	}

	handler := httpapi.NewPolicyHandler(service, log)
	srv := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      httpapi.NewRouter(handler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), cfg.Server.AllowedOrigin),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Server.HTTPAddr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func newPolicyAdapter(repo driven.RuleRepository, cfg *config.Config, log *slog.Logger) *services.PolicyAdapter {
	opts := []services.AdapterOption{
		services.WithLogger(log),
		services.WithTimeout(cfg.Storage.Timeout),
	}
	if cfg.Storage.ReplaceOnSave {
		opts = append(opts, services.WithReplaceOnSave())
	}
	return services.NewPolicyAdapter(repo, opts...)
}
