package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dcarrith/chaimcp/internal/adapters/chiarpc"
	"github.com/dcarrith/chaimcp/internal/domains/operations"
	"github.com/dcarrith/chaimcp/internal/platform/metrics"
)

const testToken = "s3cret-token"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, disabled string) *operations.Registry {
	t.Helper()
	reg := operations.NewRegistry(operations.ParseDisabled(disabled), quietLogger())
	ops := []operations.Operation{
		{
			Name:        "get_network_info",
			Description: "network info",
			Handler: func(context.Context, map[string]any) (chiarpc.Result, error) {
				return chiarpc.Success(json.RawMessage(`{"network_name":"mainnet","network_prefix":"xch","success":true}`)), nil
			},
		},
		{
			Name:        "get_wallets",
			Description: "wallets",
			Handler: func(context.Context, map[string]any) (chiarpc.Result, error) {
				return chiarpc.Fail(chiarpc.FailureConnectionRefused, "Connection refused to wallet at port 9256. Is it running?"), nil
			},
		},
		{
			Name:        "get_wallet_balance",
			Description: "balance",
			Params: []operations.Param{
				{Name: "wallet_id", Type: operations.ParamInteger, Default: int64(1)},
			},
			Handler: func(_ context.Context, body map[string]any) (chiarpc.Result, error) {
				raw, _ := json.Marshal(map[string]any{"success": true, "echo": body})
				return chiarpc.Success(raw), nil
			},
		},
		{
			Name:        "generate_mnemonic",
			Description: "mnemonic",
			Handler: func(context.Context, map[string]any) (chiarpc.Result, error) {
				return chiarpc.Success(json.RawMessage(`{"success":false,"error":"Wallet is locked"}`)), nil
			},
		},
		{
			Name:        "get_blockchain_state",
			Description: "state",
			Handler: func(context.Context, map[string]any) (chiarpc.Result, error) {
				return chiarpc.Result{}, errors.New("chia config not found")
			},
		},
	}
	for _, op := range ops {
		if _, err := reg.Register(op); err != nil {
			t.Fatalf("register %s: %v", op.Name, err)
		}
	}
	return reg
}

func newTestProtocol(t *testing.T, disabled string) *Protocol {
	t.Helper()
	return NewProtocol(newTestRegistry(t, disabled), ServerInfo{Name: "chaimcp", Version: "test"}, quietLogger(), metrics.New())
}

func newTestServer(t *testing.T, transport Transport, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Transport: transport,
		Auth:      AuthConfig{Token: testToken, Enabled: true},
		Streams:   DefaultStreamLimitConfig(),
		RateLimit: RateLimitConfig{Enabled: false},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m := metrics.New()
	p := NewProtocol(newTestRegistry(t, ""), ServerInfo{Name: "chaimcp", Version: "test"}, quietLogger(), m)
	s, err := NewServer(p, cfg, quietLogger(), m)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

type decodedResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func decodeResponse(t *testing.T, raw []byte) decodedResponse {
	t.Helper()
	var resp decodedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode response %s: %v", raw, err)
	}
	return resp
}

func decodeToolResult(t *testing.T, raw json.RawMessage) toolResult {
	t.Helper()
	var res toolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode tool result %s: %v", raw, err)
	}
	return res
}
