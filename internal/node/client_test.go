package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spigot/spigot/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(
		config.NodeConfig{URL: server.URL, Timeout: 2 * time.Second},
		config.WalletConfig{Address: "faucet-wallet-addr", Signature: "sig", Fee: 10},
	)
	return client, server
}

func TestStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"height": 12345, "peers": 8, "difficulty": 99, "synced": true,
		})
	}))

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12345), status.Height)
	require.Equal(t, 8, status.Peers)
	require.True(t, status.Synced)
}

func TestNodeStatusUnreachable(t *testing.T) {
	client := New(
		config.NodeConfig{URL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond},
		config.WalletConfig{},
	)

	_, _, _, err := client.NodeStatus(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "node unreachable")
}

func TestWalletBalance(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get_balance", r.URL.Path)
		require.Equal(t, "faucet-wallet-addr", r.URL.Query().Get("address"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"balance": 5000000, "unconfirmed_balance": 100,
		})
	}))

	balance, err := client.WalletBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5000000), balance)
}

func TestSubmitSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/submit_tx", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "sig", payload["signature"])
		require.Equal(t, float64(10), payload["fee"])

		outputs, ok := payload["outputs"].([]interface{})
		require.True(t, ok)
		require.Len(t, outputs, 1)
		output := outputs[0].(map[string]interface{})
		require.Equal(t, "recipient-addr", output["address"])
		require.Equal(t, float64(250), output["amount"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true, "tx_hash": "abc123",
		})
	}))

	txHash, err := client.Submit(context.Background(), "recipient-addr", 250)
	require.NoError(t, err)
	require.Equal(t, "abc123", txHash)
}

func TestSubmitRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false, "message": "insufficient funds",
		})
	}))

	_, err := client.Submit(context.Background(), "recipient-addr", 250)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient funds")
}

func TestSubmitMissingHash(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))

	_, err := client.Submit(context.Background(), "recipient-addr", 250)
	require.Error(t, err)
}
