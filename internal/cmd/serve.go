package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lakemap/internal/config"
	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/internal/server"
	"github.com/3leaps/lakemap/internal/server/handlers"
	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/session"
)

var serveFlagKeys = map[string]string{
	"host":        "server.host",
	"port":        "server.port",
	"log-level":   "logging.level",
	"log-profile": "logging.profile",
	"metrics":     "metrics.enabled",
	"pprof":       "debug.pprof_enabled",
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the connection and browsing API over HTTP",
		Long: `Start the HTTP server.

Clients open a connection with POST /api/v1/connections and browse it with
the tree, containers, folders and datasets endpoints. Connections listed in
the config file are opened at startup and never expire.

Examples:
  lakemap serve
  lakemap serve --port 8081 --log-level debug
  LAKEMAP_CONFIG=/etc/lakemap/lakemap.yaml lakemap serve`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("host", "localhost", "Listen host")
	cmd.Flags().Int("port", 8080, "Listen port")
	cmd.Flags().String("log-level", "info", "Log level (debug|info|warn|error)")
	cmd.Flags().String("log-profile", observability.ProfileStructured, "Log profile (STRUCTURED|CONSOLE)")
	cmd.Flags().Bool("metrics", true, "Serve Prometheus metrics")
	cmd.Flags().Bool("pprof", false, "Serve pprof handlers under /debug")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, serveFlagKeys)
	if err != nil {
		return err
	}
	if err := observability.InitServerLogger(binaryName, cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	logger := observability.ServerLogger
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.InitMetrics()
	}

	backendCfg := backend.Config{
		RateLimit: cfg.Backend.RateLimit,
		MaxKeys:   cfg.Backend.MaxKeys,
		Logger:    logger,
	}
	treeCfg := cfg.TreeBuild()
	treeCfg.Logger = logger
	if metrics != nil {
		backendCfg.Metrics = metrics.Backend
		treeCfg.Metrics = metrics.Tree
	}
	opener := func(ctx context.Context, t backend.Target) (backend.StorageBackend, error) {
		return backend.Open(ctx, t, backendCfg)
	}

	store := session.NewMemoryStore(cfg.Session.TTL, logger)
	defer func() { _ = store.Close() }()
	if cfg.Session.CleanupInterval > 0 {
		store.StartCleanupRoutine(cfg.Session.CleanupInterval)
	}

	if err := openPinnedConnections(ctx, store, cfg.Connections, opener, logger); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open configured connection", err)
	}

	api := handlers.NewAPI(store, handlers.APIConfig{
		Tree:    treeCfg,
		Timeout: cfg.Tree.Timeout,
		Open:    opener,
		Logger:  logger,
	})

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("signals", signalHealthChecker{})
	health.RegisterChecker("identity", identityHealthChecker{
		binaryName: binaryName,
		envPrefix:  config.EnvPrefix,
		configName: config.ConfigName,
	})

	opts := []server.Option{
		server.WithAPI(api),
		server.WithTimeouts(server.Timeouts{
			Read:     cfg.Server.ReadTimeout,
			Write:    cfg.Server.WriteTimeout,
			Idle:     cfg.Server.IdleTimeout,
			Shutdown: cfg.Server.ShutdownTimeout,
		}),
	}
	if metrics != nil {
		health.RegisterChecker("telemetry", telemetryHealthChecker{})
		opts = append(opts, server.WithMetrics(metrics))
		if stopMetrics := startMetricsListener(cfg, metrics, logger); stopMetrics != nil {
			defer stopMetrics()
		}
	}
	if cfg.Debug.PprofEnabled {
		opts = append(opts, server.WithProfiler())
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Received shutdown signal")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		return exitError(foundry.ExitSignalInt, "Graceful shutdown failed", err)
	}
	if err := <-errCh; err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
	}
	logger.Info("Server stopped")
	return nil
}

// openPinnedConnections opens every configured connection and stores it as
// a pinned session whose id is the connection name.
func openPinnedConnections(ctx context.Context, store session.Store, conns []config.ConnectionConfig, open handlers.Opener, logger *zap.Logger) error {
	for _, cc := range conns {
		be, err := open(ctx, cc.Target)
		if err != nil {
			return fmt.Errorf("connection %q: %w", cc.Name, err)
		}
		sess := &session.Session{
			ID:              cc.Name,
			Name:            cc.Name,
			Target:          cc.Target,
			ContainerFilter: splitList(cc.ContainerFilter),
			Backend:         be,
			Pinned:          true,
		}
		if err := store.Create(ctx, sess); err != nil {
			return fmt.Errorf("connection %q: %w", cc.Name, err)
		}
		logger.Info("Opened configured connection",
			zap.String("name", cc.Name),
			zap.String("provider", string(cc.Provider)),
		)
	}
	return nil
}

// startMetricsListener serves /metrics on metrics.port when it differs from
// the API port. The returned func stops it.
func startMetricsListener(cfg *config.Config, m *observability.Metrics, logger *zap.Logger) func() {
	if cfg.Metrics.Port <= 0 || cfg.Metrics.Port == cfg.Server.Port {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Metrics.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Metrics listener started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics listener stopped", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// signalHealthChecker reports healthy while the process is accepting
// signals; shutdown is driven by the serve loop.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(context.Context) error {
	return nil
}

type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(context.Context) error {
	if observability.CurrentMetrics() == nil {
		return errors.New("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker verifies the names the binary resolves config and
// environment with.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("identity check failed: missing binary name")
	case c.envPrefix == "":
		return errors.New("identity check failed: missing env prefix")
	case c.configName == "":
		return errors.New("identity check failed: missing config name")
	}
	return nil
}
