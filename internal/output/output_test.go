package output

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spigot/spigot/internal/core"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat(" JSON ")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	_, err = ParseFormat("xml")
	require.Error(t, err)
}

func TestRequestsTable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rendered := RequestsTable([]core.DisbursementRequest{
		{
			ID:              "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0",
			Address:         "1A1zP1eP5QGefi2DMPTfTL5SLmv7Divf",
			Amount:          100,
			Status:          core.StatusCompleted,
			TransactionHash: "deadbeef",
			QueuedAt:        now,
		},
		{
			ID:           "11111111-2222-3333-4444-555555555555",
			Address:      "1A1zP1eP5QGefi2DMPTfTL5SLmv7Divf",
			Amount:       100,
			Status:       core.StatusFailed,
			ErrorMessage: "node unreachable",
			QueuedAt:     now,
		},
	})

	require.Contains(t, rendered, "0f1e2d3c")
	require.Contains(t, rendered, "deadbeef")
	require.Contains(t, rendered, "node unreachable")
	require.Contains(t, rendered, "2 requests")
}

func TestSettingsTableSorted(t *testing.T) {
	rendered := SettingsTable(map[string]string{
		"maintenance": "false",
		"amount":      "100",
	})

	require.Contains(t, rendered, "amount")
	require.Contains(t, rendered, "maintenance")
	require.Less(t, strings.Index(rendered, "amount"), strings.Index(rendered, "maintenance"))
}
