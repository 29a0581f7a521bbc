package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"onchainroulette/internal/state"
)

// Config is the node-side configuration, loaded from a TOML file. Everything
// has a sane localnet default; chain parameters only take effect on a fresh
// app home (an existing state keeps its genesis parameters).
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	Transport  string `toml:"transport"` // socket|grpc

	Operator         string `toml:"operator"`
	WheelSize        uint32 `toml:"wheel_size"`
	MinStake         uint64 `toml:"min_stake"`
	EntropyRetention int64  `toml:"entropy_retention"`

	Debug bool `toml:"debug"`
}

func Default() Config {
	p := state.DefaultParams()
	return Config{
		ListenAddr:       "tcp://127.0.0.1:26658",
		Transport:        "socket",
		WheelSize:        p.WheelSize,
		MinStake:         p.MinStake,
		EntropyRetention: p.EntropyRetention,
	}
}

// Load reads a TOML config file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Transport != "socket" && c.Transport != "grpc" {
		return fmt.Errorf("invalid transport %q (want socket or grpc)", c.Transport)
	}
	if c.WheelSize == 0 {
		return fmt.Errorf("wheel_size must be >= 1")
	}
	if c.MinStake == 0 {
		return fmt.Errorf("min_stake must be >= 1")
	}
	if c.EntropyRetention < 1 {
		return fmt.Errorf("entropy_retention must be >= 1")
	}
	return nil
}

// Params projects the chain parameters out of the node config.
func (c Config) Params() state.Params {
	return state.Params{
		Operator:         c.Operator,
		WheelSize:        c.WheelSize,
		MinStake:         c.MinStake,
		EntropyRetention: c.EntropyRetention,
	}
}
