package chiaconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	dir := filepath.Join(root, "config")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestResolveRootUsesEnvOverride(t *testing.T) {
	lookup := func(key string) string {
		if key == RootEnv {
			return "/custom/chia/root"
		}
		return ""
	}
	if got := ResolveRoot(lookup); got != "/custom/chia/root" {
		t.Fatalf("expected env root, got %q", got)
	}
}

func TestResolveRootDefaultsToMainnet(t *testing.T) {
	got := ResolveRoot(func(string) string { return "" })
	if !strings.HasSuffix(filepath.ToSlash(got), ".chia/mainnet") {
		t.Fatalf("expected default root ending in .chia/mainnet, got %q", got)
	}
}

func TestLoadMissingConfigReturnsConfigNotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadParsesServicePorts(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
full_node:
  rpc_port: 8555
wallet:
  rpc_port: "9256"
data_layer:
  host_ip: 0.0.0.0
`)
	doc, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if port, ok := doc.RPCPort("full_node"); !ok || port != 8555 {
		t.Fatalf("expected full_node port 8555, got %d (ok=%v)", port, ok)
	}
	if port, ok := doc.RPCPort("wallet"); !ok || port != 9256 {
		t.Fatalf("expected wallet port 9256, got %d (ok=%v)", port, ok)
	}
	if _, ok := doc.RPCPort("data_layer"); ok {
		t.Fatal("expected data_layer without rpc_port to be unresolved")
	}
	if _, ok := doc.RPCPort("farmer"); ok {
		t.Fatal("expected unknown service to be unresolved")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "full_node: [unterminated")
	_, err := Load(root)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("parse error must not be reported as not found: %v", err)
	}
}

func TestRPCPortRejectsOutOfRange(t *testing.T) {
	doc := Document{"full_node": map[string]any{"rpc_port": 70000}}
	if _, ok := doc.RPCPort("full_node"); ok {
		t.Fatal("expected out-of-range port to be rejected")
	}
}

func TestResolveCertificatesFollowsLayout(t *testing.T) {
	root := filepath.Join("/", "tmp", "chia")
	b := ResolveCertificates("full_node", root)
	base := filepath.Join(root, "config", "ssl", "full_node")
	if b.CertPath != filepath.Join(base, "private_full_node.crt") {
		t.Fatalf("unexpected cert path %q", b.CertPath)
	}
	if b.KeyPath != filepath.Join(base, "private_full_node.key") {
		t.Fatalf("unexpected key path %q", b.KeyPath)
	}
	if b.CAPath != filepath.Join(root, "config", "ssl", "ca", "private_ca.crt") {
		t.Fatalf("unexpected ca path %q", b.CAPath)
	}
}

func TestResolveCertificatesDoesNoIO(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")
	b := ResolveCertificates("wallet", root)
	if b.CertPath == "" || b.KeyPath == "" || b.CAPath == "" {
		t.Fatal("expected paths even when root does not exist")
	}
}
