package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func handle(t *testing.T, p *Protocol, msg string) decodedResponse {
	t.Helper()
	raw, ok := p.Handle(context.Background(), []byte(msg))
	if !ok {
		t.Fatalf("expected a response for %s", msg)
	}
	return decodeResponse(t, raw)
}

func TestInitializeNegotiatesVersion(t *testing.T) {
	p := newTestProtocol(t, "")
	resp := handle(t, p, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`)
	var res initializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	if res.ProtocolVersion != protocolVersionLegacy {
		t.Fatalf("expected %s, got %s", protocolVersionLegacy, res.ProtocolVersion)
	}
	if res.ServerInfo.Name != "chaimcp" {
		t.Fatalf("expected server name chaimcp, got %q", res.ServerInfo.Name)
	}
	if _, ok := res.Capabilities["tools"]; !ok {
		t.Fatal("expected tools capability")
	}

	resp = handle(t, p, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`)
	_ = json.Unmarshal(resp.Result, &res)
	if res.ProtocolVersion != protocolVersionLatest {
		t.Fatalf("expected fallback to %s, got %s", protocolVersionLatest, res.ProtocolVersion)
	}
}

func TestNotificationsGetNoResponse(t *testing.T) {
	p := newTestProtocol(t, "")
	if _, ok := p.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)); ok {
		t.Fatal("expected no response to a notification")
	}
	if _, ok := p.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":9,"result":{}}`)); ok {
		t.Fatal("expected no response to a client response")
	}
}

func TestPingReturnsEmptyResult(t *testing.T) {
	resp := handle(t, newTestProtocol(t, ""), `{"jsonrpc":"2.0","id":"p","method":"ping"}`)
	if string(resp.Result) != "{}" || string(resp.ID) != `"p"` {
		t.Fatalf("unexpected ping response: id=%s result=%s", resp.ID, resp.Result)
	}
}

func TestToolsListHonoursDisabledOperations(t *testing.T) {
	p := newTestProtocol(t, "get_blockchain_state, generate_mnemonic")
	resp := handle(t, p, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	var res struct {
		Tools []toolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode tools/list: %v", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		if tool.InputSchema["type"] != "object" {
			t.Fatalf("expected object schema for %s", tool.Name)
		}
	}
	joined := strings.Join(names, ",")
	if joined != "get_network_info,get_wallets,get_wallet_balance" {
		t.Fatalf("unexpected tools: %s", joined)
	}
}

func TestToolsCallReturnsBackendBodyAsText(t *testing.T) {
	resp := handle(t, newTestProtocol(t, ""), `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_network_info","arguments":{}}}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	res := decodeToolResult(t, resp.Result)
	if res.IsError || len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("unexpected tool result: %+v", res)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(res.Content[0].Text), &body); err != nil {
		t.Fatalf("tool text is not JSON: %v", err)
	}
	if body["network_name"] != "mainnet" {
		t.Fatalf("expected mainnet, got %v", body["network_name"])
	}
}

func TestToolsCallFailureIsErrorResult(t *testing.T) {
	resp := handle(t, newTestProtocol(t, ""), `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"get_wallets"}}`)
	res := decodeToolResult(t, resp.Result)
	if !res.IsError {
		t.Fatal("expected isError for a failed call")
	}
	var body map[string]any
	_ = json.Unmarshal([]byte(res.Content[0].Text), &body)
	if body["success"] != false || body["error"] != "Connection refused to wallet at port 9256. Is it running?" {
		t.Fatalf("unexpected failure body: %v", body)
	}
	if len(body) != 2 {
		t.Fatalf("expected exactly success and error keys, got %v", body)
	}
}

func TestToolsCallBackendSuccessFalseIsError(t *testing.T) {
	resp := handle(t, newTestProtocol(t, ""), `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"generate_mnemonic"}}`)
	if !decodeToolResult(t, resp.Result).IsError {
		t.Fatal("expected isError when backend reports success:false")
	}
}

func TestToolsCallAppliesDefaults(t *testing.T) {
	resp := handle(t, newTestProtocol(t, ""), `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"get_wallet_balance"}}`)
	res := decodeToolResult(t, resp.Result)
	if !strings.Contains(res.Content[0].Text, `"wallet_id": 1`) {
		t.Fatalf("expected wallet_id default in echoed body, got %s", res.Content[0].Text)
	}
}

func TestToolsCallErrors(t *testing.T) {
	p := newTestProtocol(t, "generate_mnemonic")
	cases := []struct {
		name string
		msg  string
		code int
	}{
		{"disabled tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"generate_mnemonic"}}`, codeInvalidParams},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"send_xch"}}`, codeInvalidParams},
		{"bad argument", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_wallet_balance","arguments":{"wallet_id":"one"}}}`, codeInvalidParams},
		{"missing name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, codeInvalidParams},
		{"dispatch failure", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_blockchain_state"}}`, codeInternalError},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, codeMethodNotFound},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, codeInvalidRequest},
		{"parse error", `{"jsonrpc":`, codeParseError},
	}
	for _, tc := range cases {
		resp := handle(t, p, tc.msg)
		if resp.Error == nil || resp.Error.Code != tc.code {
			t.Fatalf("%s: expected code %d, got %+v", tc.name, tc.code, resp.Error)
		}
	}
}

func TestParseErrorHasNullID(t *testing.T) {
	raw, _ := newTestProtocol(t, "").Handle(context.Background(), []byte(`not json`))
	if !strings.Contains(string(raw), `"id":null`) {
		t.Fatalf("expected null id, got %s", raw)
	}
}

func TestBatchSkipsNotifications(t *testing.T) {
	p := newTestProtocol(t, "")
	raw, ok := p.Handle(context.Background(), []byte(`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"notifications/initialized"},{"jsonrpc":"2.0","id":2,"method":"ping"}]`))
	if !ok {
		t.Fatal("expected batch response")
	}
	var out []decodedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(out))
	}
	if _, ok := p.Handle(context.Background(), []byte(`[{"jsonrpc":"2.0","method":"notifications/initialized"}]`)); ok {
		t.Fatal("expected no response for a notification-only batch")
	}
}
