package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	rateLimitResetAll    bool
	rateLimitResetPrefix string
	rateLimitResetYes    bool
)

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Manage stored rate limit state",
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear recorded hits and blocks",
	Long: `Clear recorded hits and blocks.

Keys look like "<ip>:<route-class>", so --prefix 203.0.113.9 clears
every route class for that client and --prefix 203.0.113.9:faucet
clears just the faucet class.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := strings.TrimSpace(rateLimitResetPrefix)
		if rateLimitResetAll == (prefix != "") {
			return errors.New("exactly one of --all or --prefix is required")
		}
		if rateLimitResetAll && !rateLimitResetYes {
			return errors.New("--all requires --yes")
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		deleted, err := db.ResetRateState(cmd.Context(), prefix)
		if err != nil {
			return err
		}

		fmt.Printf("Cleared %d recorded hit(s)\n", deleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rateLimitCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)

	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "clear state for every client")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "clear state for keys with this prefix")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "confirm destructive reset")
}
