// Package cmd wires the spigot CLI: the long-running serve command plus
// operator commands for the queue, the blacklist, and runtime settings.
package cmd

import (
	"os"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigot/spigot/internal/config"
	"github.com/spigot/spigot/internal/observability"
)

const (
	binaryName = "spigot"
	envPrefix  = "SPIGOT"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: "Testnet faucet service",
	Long: `Spigot is a testnet faucet: it validates disbursement requests,
applies per-address cooldowns and rate limits, and drains a single-flight
distribution queue against an upstream node.

Use the subcommands to perform specific operations.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. Server mode will initialize proper telemetry later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/spigot/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Initialize CLI logger early so we can use it in config loading
	observability.InitCLILogger(binaryName, verbose)

	if cfgFile != "" {
		// Use config file from flag
		viper.SetConfigFile(cfgFile)
	} else {
		appConfigDir := gfconfig.GetAppConfigDir(binaryName)
		if appConfigDir == "" {
			if verbose {
				observability.CLILogger.Warn("Could not resolve XDG config directory, falling back to home directory")
			}
			if home, err := os.UserHomeDir(); err == nil {
				viper.AddConfigPath(home)
				viper.SetConfigName("." + binaryName)
			}
		} else {
			viper.AddConfigPath(appConfigDir)
			viper.SetConfigName("config")
		}

		// Also search in current directory
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
		}
	} else {
		// It's OK if config file doesn't exist, we have defaults
		if verbose {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				observability.CLILogger.Debug("No config file found, using defaults and environment variables")
			} else {
				observability.CLILogger.Warn("Error reading config file", zap.Error(err))
			}
		}
	}

	setDefaults()
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")

	// Store defaults
	viper.SetDefault("store.driver", "libsql")
	viper.SetDefault("store.path", config.DefaultStorePath())
	viper.SetDefault("store.url", "")
	viper.SetDefault("store.auth_token", "")

	// Node defaults
	viper.SetDefault("node.url", "http://localhost:9332")
	viper.SetDefault("node.timeout", "10s")

	// Wallet defaults
	viper.SetDefault("wallet.address", "")
	viper.SetDefault("wallet.signature", "")
	viper.SetDefault("wallet.fee", 1)

	// Faucet defaults; the settings table overrides these at runtime
	viper.SetDefault("faucet.amount", 100)
	viper.SetDefault("faucet.cooldown_hours", 24)
	viper.SetDefault("faucet.daily_limit", 10000)
	viper.SetDefault("faucet.ip_daily_limit", 5)
	viper.SetDefault("faucet.min_balance_alert", 1000)
	viper.SetDefault("faucet.max_attempts", 3)
	viper.SetDefault("faucet.retry_base_delay", "30s")

	// Queue defaults
	viper.SetDefault("queue.tick_interval", "10s")
	viper.SetDefault("queue.drain_timeout", "30s")

	// Admin defaults (empty token disables the admin surface)
	viper.SetDefault("admin.token", "")

	// Rate limit defaults per route class
	viper.SetDefault("rate_limits.faucet.max_requests", 1)
	viper.SetDefault("rate_limits.faucet.window", "24h")
	viper.SetDefault("rate_limits.faucet.block_duration", "24h")
	viper.SetDefault("rate_limits.api.max_requests", 100)
	viper.SetDefault("rate_limits.api.window", "15m")
	viper.SetDefault("rate_limits.api.block_duration", "1h")
	viper.SetDefault("rate_limits.status.max_requests", 60)
	viper.SetDefault("rate_limits.status.window", "1m")
	viper.SetDefault("rate_limits.status.block_duration", "5m")
	viper.SetDefault("rate_limits.admin.max_requests", 20)
	viper.SetDefault("rate_limits.admin.window", "15m")
	viper.SetDefault("rate_limits.admin.block_duration", "1h")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	// Health check defaults
	viper.SetDefault("health.enabled", true)
	viper.SetDefault("health.probe_timeout", "5s")
}
