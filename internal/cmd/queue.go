package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spigot/spigot/internal/core"
	"github.com/spigot/spigot/internal/core/store"
	"github.com/spigot/spigot/internal/output"
)

var (
	queueListStatus string
	queueListLimit  int
	queueListOutput string
	statsOutput     string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the distribution queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List disbursement requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(queueListOutput)
		if err != nil {
			return err
		}

		status, err := parseStatusFilter(queueListStatus)
		if err != nil {
			return err
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		requests, err := db.ListRequests(cmd.Context(), store.RequestQuery{
			Status: status,
			Limit:  queueListLimit,
		})
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			rendered, err := output.RenderJSON(requests)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		fmt.Println(output.RequestsTable(requests))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show faucet distribution statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(statsOutput)
		if err != nil {
			return err
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		stats, err := db.Stats(cmd.Context(), time.Now().UTC())
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			rendered, err := output.RenderJSON(stats)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		fmt.Println(output.StatsTable(stats))
		return nil
	},
}

func parseStatusFilter(raw string) (core.RequestStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case string(core.StatusPending):
		return core.StatusPending, nil
	case string(core.StatusProcessing):
		return core.StatusProcessing, nil
	case string(core.StatusCompleted):
		return core.StatusCompleted, nil
	case string(core.StatusFailed):
		return core.StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown status filter: %s (expected pending, processing, completed, or failed)", raw)
	}
}

func init() {
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(statsCmd)
	queueCmd.AddCommand(queueListCmd)

	queueListCmd.Flags().StringVar(&queueListStatus, "status", "", "filter by status: pending|processing|completed|failed")
	queueListCmd.Flags().IntVar(&queueListLimit, "limit", 50, "maximum number of requests to list")
	queueListCmd.Flags().StringVarP(&queueListOutput, "output", "o", string(output.FormatTable), "output format: table|json")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", string(output.FormatTable), "output format: table|json")
}
