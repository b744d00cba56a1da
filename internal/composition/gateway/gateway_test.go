package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/dcarrith/chaimcp/internal/adapters/chiarpc"
	"github.com/dcarrith/chaimcp/internal/adapters/rpc"
	"github.com/dcarrith/chaimcp/internal/domains/operations"
	"github.com/dcarrith/chaimcp/internal/testutil/chiaroot"
)

type dispatchFunc func(ctx context.Context, service, endpoint string, body map[string]any) (chiarpc.Result, error)

func (f dispatchFunc) Dispatch(ctx context.Context, service, endpoint string, body map[string]any) (chiarpc.Result, error) {
	return f(ctx, service, endpoint, body)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type toolCallResponse struct {
	ID     json.RawMessage `json:"id"`
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestGatewayServesStdioAgainstChiaBackend(t *testing.T) {
	var gotPath, gotBody string
	backend := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotPath, gotBody = r.URL.Path, string(raw)
		_, _ = w.Write([]byte(`{"success":true,"wallet_balance":{"confirmed_wallet_balance":42}}`))
	}))
	defer backend.Close()
	_, portRaw, _ := net.SplitHostPort(backend.Listener.Addr().String())
	port, _ := strconv.Atoi(portRaw)
	root := chiaroot.New(t, map[string]int{operations.ServiceWallet: port})
	chiaroot.WriteServiceCert(t, root, operations.ServiceWallet)

	settings, err := LoadSettings(lookupFrom(map[string]string{
		"CHIA_ROOT":     root,
		"CHIA_RPC_HOST": "127.0.0.1",
	}))
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_wallet_balance","arguments":{}}}`,
	}, "\n"))
	var out bytes.Buffer
	if err := Run(context.Background(), settings, "test", discardLogger(), IO{Stdin: in, Stdout: &out}); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 responses, got %q", out.String())
	}
	var resp toolCallResponse
	if err := json.Unmarshal([]byte(lines[1]), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != nil || resp.Result.IsError || len(resp.Result.Content) != 1 {
		t.Fatalf("unexpected tool result: %s", lines[1])
	}
	if !strings.Contains(resp.Result.Content[0].Text, `"confirmed_wallet_balance": 42`) {
		t.Fatalf("expected backend body in text, got %q", resp.Result.Content[0].Text)
	}
	if gotPath != "/get_wallet_balance" || gotBody != `{"wallet_id":1}` {
		t.Fatalf("unexpected backend call %s %s", gotPath, gotBody)
	}
}

func TestGatewayReportsMissingChiaConfigAsToolFailure(t *testing.T) {
	settings, err := LoadSettings(lookupFrom(map[string]string{"CHIA_ROOT": t.TempDir()}))
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	in := strings.NewReader(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_network_info"}}` + "\n")
	var out bytes.Buffer
	if err := Run(context.Background(), settings, "test", discardLogger(), IO{Stdin: in, Stdout: &out}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var resp toolCallResponse
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32603 {
		t.Fatalf("expected internal error for missing config, got %s", out.String())
	}
}

func TestGatewayHonoursDisabledOperations(t *testing.T) {
	settings := Settings{Transport: rpc.TransportStdio, Disabled: operations.ParseDisabled("generate_mnemonic")}
	g, err := newGateway(settings, "test", discardLogger(), dispatchFunc(func(context.Context, string, string, map[string]any) (chiarpc.Result, error) {
		return chiarpc.Success(json.RawMessage(`{"success":true}`)), nil
	}))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if _, ok := g.Registry().Lookup("generate_mnemonic"); ok {
		t.Fatalf("expected generate_mnemonic to be disabled")
	}
	if len(g.Registry().List()) != len(operations.Catalog())-1 {
		t.Fatalf("expected one operation fewer than the catalog, got %d", len(g.Registry().List()))
	}
}

func TestGatewayBuildsHTTPServerForNetworkTransport(t *testing.T) {
	settings := Settings{
		Transport:      rpc.TransportHTTP,
		Auth:           rpc.AuthConfig{Token: "secret", Enabled: true},
		RateLimit:      rpc.DefaultRateLimitConfig(),
		Streams:        rpc.DefaultStreamLimitConfig(),
		MetricsEnabled: true,
	}
	g, err := newGateway(settings, "test", discardLogger(), dispatchFunc(func(context.Context, string, string, map[string]any) (chiarpc.Result, error) {
		return chiarpc.Success(json.RawMessage(`{"success":true}`)), nil
	}))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if g.server == nil {
		t.Fatalf("expected an HTTP server for the http transport")
	}
	srv := httptest.NewServer(g.server.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	req.Host = "localhost:8000"
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("expected metrics page, got %d %s", resp.StatusCode, body)
	}
}
