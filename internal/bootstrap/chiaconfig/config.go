package chiaconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	RootEnv        = "CHIA_ROOT"
	defaultRootRel = ".chia/mainnet"
)

var ErrConfigNotFound = errors.New("chia config not found")

// Document is the parsed config.yaml: service name -> settings.
type Document map[string]any

// ResolveRoot returns CHIA_ROOT when set, else ~/.chia/mainnet.
func ResolveRoot(lookup func(string) string) string {
	if lookup == nil {
		lookup = os.Getenv
	}
	if root := strings.TrimSpace(lookup(RootEnv)); root != "" {
		return expandHome(root)
	}
	return DefaultRoot()
}

func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join("~", defaultRootRel)
	}
	return filepath.Join(home, defaultRootRel)
}

func ConfigPath(root string) string {
	return filepath.Join(root, "config", "config.yaml")
}

// Load reads <root>/config/config.yaml.
func Load(root string) (Document, error) {
	path := ConfigPath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read chia config %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse chia config %s: %w", path, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Service returns the settings block for a service, if present.
func (d Document) Service(name string) (map[string]any, bool) {
	raw, ok := d[name]
	if !ok {
		return nil, false
	}
	section, ok := raw.(map[string]any)
	return section, ok
}

// RPCPort returns config[service].rpc_port.
func (d Document) RPCPort(service string) (int, bool) {
	section, ok := d.Service(service)
	if !ok {
		return 0, false
	}
	return portValue(section["rpc_port"])
}

func portValue(raw any) (int, bool) {
	var port int
	switch v := raw.(type) {
	case int:
		port = v
	case int64:
		port = int(v)
	case uint64:
		port = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		port = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		port = parsed
	default:
		return 0, false
	}
	if port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
