package output

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/spigot/spigot/internal/core"
)

// RequestsTable renders disbursement requests as an ASCII table.
func RequestsTable(requests []core.DisbursementRequest) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Address", "Amount", "Status", "Attempts", "Queued", "Tx Hash / Error"})

	for _, req := range requests {
		t.AppendRow(table.Row{
			shortID(req.ID),
			req.Address,
			req.Amount,
			string(req.Status),
			req.Attempts,
			req.QueuedAt.UTC().Format(time.RFC3339),
			requestOutcome(req),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%d requests", len(requests))})
	return t.Render()
}

// BlacklistTable renders blacklist entries as an ASCII table.
func BlacklistTable(entries []core.BlacklistEntry) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Address", "Reason", "Added"})

	for _, entry := range entries {
		reason := entry.Reason
		if reason == "" {
			reason = "-"
		}
		t.AppendRow(table.Row{entry.Address, reason, entry.CreatedAt.UTC().Format(time.RFC3339)})
	}

	return t.Render()
}

// SettingsTable renders a settings snapshot as a sorted key/value table.
func SettingsTable(settings map[string]string) string {
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Setting", "Value"})
	for _, key := range keys {
		t.AppendRow(table.Row{key, settings[key]})
	}
	return t.Render()
}

// StatsTable renders faucet statistics.
func StatsTable(stats *core.FaucetStats) string {
	if stats == nil {
		return ""
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"completed total", stats.CompletedTotal})
	t.AppendRow(table.Row{"disbursed total", stats.DisbursedTotal})
	t.AppendRow(table.Row{"failed total", stats.FailedTotal})
	t.AppendRow(table.Row{"pending depth", stats.PendingDepth})
	t.AppendRow(table.Row{"completed (24h)", stats.Completed24h})
	t.AppendRow(table.Row{"disbursed (24h)", stats.Disbursed24h})
	t.AppendRow(table.Row{"requests (24h)", stats.RequestsPast24h})
	return t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func requestOutcome(req core.DisbursementRequest) string {
	if req.TransactionHash != "" {
		return req.TransactionHash
	}
	if req.ErrorMessage != "" {
		return req.ErrorMessage
	}
	return "-"
}
