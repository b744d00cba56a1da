package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dcarrith/chaimcp/internal/domains/operations"
)

func TestSettingsLookupPrefersChangedFlags(t *testing.T) {
	cmd := newRootCommand()
	if err := cmd.PersistentFlags().Set("transport", "sse"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	env := map[string]string{"MCP_TRANSPORT": "http", "MCP_PORT": "9000"}
	lookup := settingsLookup(cmd, func(key string) string { return env[key] })
	if got := lookup("MCP_TRANSPORT"); got != "sse" {
		t.Fatalf("expected flag value sse, got %q", got)
	}
	if got := lookup("MCP_PORT"); got != "9000" {
		t.Fatalf("expected env fallback 9000, got %q", got)
	}
}

func TestPrintToolsMarksDisabledOperations(t *testing.T) {
	var out bytes.Buffer
	disabled := operations.ParseDisabled("generate_mnemonic")
	if err := printTools(&out, operations.Catalog(), disabled, true); err != nil {
		t.Fatalf("print tools: %v", err)
	}
	var rows []toolRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != len(operations.Catalog()) {
		t.Fatalf("expected %d rows, got %d", len(operations.Catalog()), len(rows))
	}
	for _, row := range rows {
		if row.Name == "generate_mnemonic" && row.Enabled {
			t.Fatalf("expected generate_mnemonic disabled")
		}
		if row.Name == "dl_get_owned_stores" && row.Endpoint != "get_owned_stores" {
			t.Fatalf("expected DataLayer endpoint mapping, got %q", row.Endpoint)
		}
	}
}

func TestPrintToolsTable(t *testing.T) {
	var out bytes.Buffer
	if err := printTools(&out, operations.Catalog(), nil, false); err != nil {
		t.Fatalf("print tools: %v", err)
	}
	if !strings.HasPrefix(out.String(), "NAME") || !strings.Contains(out.String(), "get_blockchain_state") {
		t.Fatalf("unexpected table output %q", out.String())
	}
}
