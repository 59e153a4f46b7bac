package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the node-level settings for running the protocol core. The
// governance-controlled protocol parameters live in native/params, not here.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	RPCAddress    string `toml:"RPCAddress"`
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`
	Environment   string `toml:"Environment"`
	// ModuleAddress is the bech32 treasury address custodying pool funds.
	ModuleAddress string `toml:"ModuleAddress"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":6001"
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./kleo-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "kleo-local"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
