package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spigot/spigot/internal/output"
)

var (
	blacklistListOutput string
	blacklistAddReason  string
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the address blacklist",
}

var blacklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blacklisted addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(blacklistListOutput)
		if err != nil {
			return err
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListBlacklist(cmd.Context())
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			rendered, err := output.RenderJSON(entries)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		fmt.Println(output.BlacklistTable(entries))
		return nil
	},
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Add an address to the blacklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := strings.TrimSpace(args[0])
		if address == "" {
			return fmt.Errorf("address is required")
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.AddBlacklistEntry(cmd.Context(), address, strings.TrimSpace(blacklistAddReason)); err != nil {
			return err
		}

		fmt.Printf("Blacklisted %s\n", address)
		return nil
	},
}

var blacklistRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove an address from the blacklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := strings.TrimSpace(args[0])

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		removed, err := db.RemoveBlacklistEntry(cmd.Context(), address)
		if err != nil {
			return err
		}
		if removed == 0 {
			return fmt.Errorf("address not blacklisted: %s", address)
		}

		fmt.Printf("Removed %s from blacklist\n", address)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(blacklistCmd)
	blacklistCmd.AddCommand(blacklistListCmd)
	blacklistCmd.AddCommand(blacklistAddCmd)
	blacklistCmd.AddCommand(blacklistRemoveCmd)

	blacklistListCmd.Flags().StringVarP(&blacklistListOutput, "output", "o", string(output.FormatTable), "output format: table|json")
	blacklistAddCmd.Flags().StringVar(&blacklistAddReason, "reason", "", "why the address is blocked")
}
