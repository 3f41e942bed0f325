// Package node is the HTTP adapter for the upstream ledger node. It exposes
// the three RPC calls the faucet needs: chain status, wallet balance, and
// transaction submission.
package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spigot/spigot/internal/config"
)

const defaultTimeout = 10 * time.Second

// Client talks to a single upstream node. It satisfies the engine's
// Submitter, BalanceSource, and NodeStatusSource interfaces.
type Client struct {
	baseURL string
	wallet  config.WalletConfig
	http    *http.Client
}

// New builds a Client from node and wallet configuration.
func New(nodeCfg config.NodeConfig, walletCfg config.WalletConfig) *Client {
	timeout := nodeCfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(nodeCfg.URL, "/"),
		wallet:  walletCfg,
		http:    &http.Client{Timeout: timeout},
	}
}

// Status is the node's chain summary.
type Status struct {
	Height     int64  `json:"height"`
	Peers      int    `json:"peers"`
	Difficulty uint64 `json:"difficulty"`
	Synced     bool   `json:"synced"`
}

type balanceResponse struct {
	Balance            int64 `json:"balance"`
	UnconfirmedBalance int64 `json:"unconfirmed_balance"`
}

type txOutput struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

type submitRequest struct {
	Inputs    []string   `json:"inputs"`
	Outputs   []txOutput `json:"outputs"`
	Fee       int64      `json:"fee"`
	Metadata  string     `json:"metadata"`
	Signature string     `json:"signature"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash"`
	Message string `json:"message"`
}

// Status fetches the node's chain summary.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.getJSON(ctx, "/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// NodeStatus adapts Status to the health probe interface.
func (c *Client) NodeStatus(ctx context.Context) (int64, int, bool, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	return status.Height, status.Peers, status.Synced, nil
}

// Balance fetches the confirmed balance for an address.
func (c *Client) Balance(ctx context.Context, address string) (int64, error) {
	query := url.Values{"address": []string{address}}
	var resp balanceResponse
	if err := c.getJSON(ctx, "/get_balance", query, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// WalletBalance reports the faucet wallet's confirmed balance.
func (c *Client) WalletBalance(ctx context.Context) (int64, error) {
	return c.Balance(ctx, c.wallet.Address)
}

// Submit sends one payout transaction from the faucet wallet and returns the
// transaction hash. A reachable node that rejects the transaction is as much
// a failure as an unreachable one; both feed the caller's retry policy.
func (c *Client) Submit(ctx context.Context, address string, amount int64) (string, error) {
	payload := submitRequest{
		Inputs:    []string{c.wallet.Address},
		Outputs:   []txOutput{{Address: address, Amount: amount}},
		Fee:       c.wallet.Fee,
		Metadata:  "faucet disbursement",
		Signature: c.wallet.Signature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit_tx", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("node unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	var resp submitResponse
	if err := decodeBody(httpResp, &resp); err != nil {
		return "", err
	}

	if !resp.Success {
		message := resp.Message
		if message == "" {
			message = fmt.Sprintf("node returned status %d", httpResp.StatusCode)
		}
		return "", fmt.Errorf("transaction rejected: %s", message)
	}
	if resp.TxHash == "" {
		return "", fmt.Errorf("node accepted transaction without a hash")
	}
	return resp.TxHash, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build node request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("node unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned status %d for %s", resp.StatusCode, path)
	}

	return decodeBody(resp, out)
}

func decodeBody(resp *http.Response, out interface{}) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read node response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode node response: %w", err)
	}
	return nil
}
