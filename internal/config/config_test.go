package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ocrd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
	if cfg.ListenAddr != "tcp://127.0.0.1:26658" || cfg.Transport != "socket" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.WheelSize != 37 || cfg.MinStake != 1 || cfg.EntropyRetention != 256 {
		t.Fatalf("unexpected chain defaults: %+v", cfg)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen_addr = "tcp://0.0.0.0:36658"
operator = "casino"
wheel_size = 41
min_stake = 10
debug = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "tcp://0.0.0.0:36658" {
		t.Fatalf("listen_addr=%q", cfg.ListenAddr)
	}
	if cfg.Operator != "casino" || cfg.WheelSize != 41 || cfg.MinStake != 10 || !cfg.Debug {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.Transport != "socket" || cfg.EntropyRetention != 256 {
		t.Fatalf("defaults clobbered: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad transport":     `transport = "carrier-pigeon"`,
		"zero wheel":        `wheel_size = 0`,
		"zero stake":        `min_stake = 0`,
		"zero retention":    `entropy_retention = 0`,
		"malformed toml":    `wheel_size = `,
		"missing file path": "", // handled below
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, body)
			if name == "missing file path" {
				path = filepath.Join(t.TempDir(), "nope.toml")
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParamsProjection(t *testing.T) {
	cfg := Default()
	cfg.Operator = "casino"
	cfg.WheelSize = 53
	p := cfg.Params()
	if p.Operator != "casino" || p.WheelSize != 53 || p.MinStake != cfg.MinStake || p.EntropyRetention != cfg.EntropyRetention {
		t.Fatalf("projection mismatch: %+v", p)
	}
}
