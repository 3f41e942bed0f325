package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spigot/spigot/internal/core/engine"
	"github.com/spigot/spigot/internal/output"
)

var configListOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change runtime faucet settings",
	Long: `Inspect and change runtime faucet settings.

Settings live in the store and override the static config file. The
running server picks up changes on SIGHUP or through the admin API.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the effective runtime settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(configListOutput)
		if err != nil {
			return err
		}

		db, cfg, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		settings := &engine.ConfigStore{Store: db, Defaults: cfg.Faucet}
		if err := settings.Reload(cmd.Context()); err != nil {
			return err
		}

		if format == output.FormatJSON {
			rendered, err := output.RenderJSON(settings.Snapshot())
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		fmt.Println(output.SettingsTable(settings.Snapshot()))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist one runtime setting",
	Long: `Persist one runtime setting.

Recognized keys: amount, cooldown_hours, daily_limit, ip_daily_limit,
min_balance_alert, max_attempts, retry_base_delay, maintenance.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		db, cfg, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		settings := &engine.ConfigStore{Store: db, Defaults: cfg.Faucet}
		if err := settings.Reload(cmd.Context()); err != nil {
			return err
		}
		if err := settings.Set(cmd.Context(), key, value); err != nil {
			return err
		}

		fmt.Printf("%s = %s\n", key, settings.Snapshot()[key])
		return nil
	},
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the effective runtime settings as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		settings := &engine.ConfigStore{Store: db, Defaults: cfg.Faucet}
		if err := settings.Reload(cmd.Context()); err != nil {
			return err
		}

		payload, err := yaml.Marshal(map[string]map[string]string{"faucet": settings.Snapshot()})
		if err != nil {
			return err
		}

		fmt.Print(string(payload))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configExportCmd)

	configListCmd.Flags().StringVarP(&configListOutput, "output", "o", string(output.FormatTable), "output format: table|json")
}
