package cmd

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigot/spigot/internal/config"
	"github.com/spigot/spigot/internal/core/engine"
	"github.com/spigot/spigot/internal/core/store"
	errwrap "github.com/spigot/spigot/internal/errors"
	"github.com/spigot/spigot/internal/metrics"
	"github.com/spigot/spigot/internal/node"
	"github.com/spigot/spigot/internal/observability"
	"github.com/spigot/spigot/internal/server"
	"github.com/spigot/spigot/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the faucet HTTP server",
	Long: `Start the faucet HTTP server and the distribution queue processor.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown (drains the queue)
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload config file and runtime settings

On shutdown the HTTP server stops accepting requests first, then the queue
processor drains for a bounded time, then storage is closed and logs flushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "config load failed")
		}

		logLevel := cfg.Logging.Level
		observability.InitServerLogger(binaryName, logLevel)

		if cfg.Metrics.Enabled {
			metricsPort := cfg.Metrics.Port
			if metricsPort == 0 {
				metricsPort = 9090
			}
			if err := observability.InitMetrics(binaryName, metricsPort); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics",
					zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		observability.ServerLogger.Info("Initializing faucet",
			zap.String("service", binaryName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("node_url", cfg.Node.URL))

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		db, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "failed to open store")
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return errwrap.WrapDatabaseError(ctx, err, "failed to migrate store")
		}

		configStore := &engine.ConfigStore{Store: db, Defaults: cfg.Faucet}
		if err := configStore.Reload(ctx); err != nil {
			_ = db.Close()
			return errwrap.WrapDatabaseError(ctx, err, "failed to load runtime settings")
		}

		nodeClient := node.New(cfg.Node, cfg.Wallet)

		limiter := &engine.RateLimiter{
			Store:  db,
			Limits: routeLimits(cfg.RateLimits),
		}

		validator := &engine.Validator{Store: db, Config: configStore}

		queue := &engine.QueueProcessor{
			Store:        db,
			Submitter:    nodeClient,
			Balance:      nodeClient,
			Config:       configStore,
			TickInterval: cfg.Queue.TickInterval,
			DrainTimeout: cfg.Queue.DrainTimeout,
		}
		if err := queue.Start(ctx); err != nil {
			_ = db.Close()
			return errwrap.WrapInternal(ctx, err, "failed to start queue processor")
		}

		aggregator := &engine.HealthAggregator{Timeout: cfg.Health.ProbeTimeout}
		if cfg.Health.Enabled {
			aggregator.RegisterProbe("storage", engine.StorageProbe(db))
			aggregator.RegisterProbe("node", engine.NodeProbe(nodeClient))
			aggregator.RegisterProbe("wallet", engine.WalletProbe(nodeClient, configStore))
			aggregator.RegisterProbe("memory", engine.MemoryProbe())
			aggregator.RegisterProbe("filesystem", engine.FilesystemProbe(filepath.Dir(cfg.Store.Path)))
		}

		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

		srv := server.New(cfg.Server, server.Deps{
			Faucet: &handlers.Faucet{
				Store:     db,
				Validator: validator,
				Config:    configStore,
			},
			Health: &handlers.Health{
				Aggregator: aggregator,
				Version:    versionInfo.Version,
			},
			Admin: &handlers.Admin{
				Store:  db,
				Config: configStore,
			},
			Limiter:    limiter,
			AdminToken: cfg.Admin.Token,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered,
		// first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Close storage
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Closing store...")
			return db.Close()
		})

		// Handler 3: Stop the queue processor, draining pending work
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Stopping queue processor...")
			return queue.Stop(ctx)
		})

		// Handler 4: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: reloading configuration")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					observability.ServerLogger.Error("Failed to reload config file",
						zap.String("file", viper.ConfigFileUsed()),
						zap.Error(err))
					return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
				}
			}

			// Runtime tunables re-read from the settings table on top of the
			// (possibly changed) file defaults. Reloads are serialized by the
			// signal handler, so the defaults swap is safe.
			if reloaded, err := loadConfig(); err == nil {
				configStore.Defaults = reloaded.Faucet
			}
			if err := configStore.Reload(ctx); err != nil {
				return errwrap.WrapDatabaseError(ctx, err, "settings reload failed")
			}

			observability.ServerLogger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		metrics.SetServerStartTime(time.Now().Unix())

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// routeLimits converts the config map into limiter parameters, keeping
// defaults for any class the file does not override.
func routeLimits(overrides map[string]config.RouteLimitConfig) map[string]engine.RouteLimit {
	limits := make(map[string]engine.RouteLimit, len(engine.DefaultLimits))
	for class, limit := range engine.DefaultLimits {
		limits[class] = limit
	}
	for class, override := range overrides {
		if override.MaxRequests <= 0 || override.Window <= 0 {
			continue
		}
		limit := engine.RouteLimit{
			MaxRequests:   override.MaxRequests,
			Window:        override.Window,
			BlockDuration: override.BlockDuration,
		}
		if limit.BlockDuration <= 0 {
			limit.BlockDuration = limit.Window
		}
		limits[class] = limit
	}
	return limits
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
