// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
	"github.com/kaykay0201/remote-desktop-rdp/internal/util"
	"gopkg.in/yaml.v3"
)

// UIConfig contains TUI display settings.
type UIConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// Config holds application-level configuration. Credentials are never part
// of it.
type Config struct {
	// CloudflaredPath is the broker binary; a bare name resolves through
	// PATH.
	CloudflaredPath string `yaml:"cloudflared_path"`
	// HostRDPPort is the local service a host-role tunnel advertises.
	HostRDPPort int `yaml:"host_rdp_port"`
	// ProxyPort is the local port a client-role tunnel binds and the RDP
	// negotiator dials.
	ProxyPort int      `yaml:"proxy_port"`
	UI        UIConfig `yaml:"ui"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		CloudflaredPath: "cloudflared",
		HostRDPPort:     model.DefaultRDPPort,
		ProxyPort:       model.DefaultProxyPort,
		UI:              UIConfig{RefreshSeconds: util.DefaultRefreshSeconds},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/remote-desktop-rdp.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "remote-desktop-rdp"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "remote-desktop-rdp"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.CloudflaredPath == "" {
		cfg.CloudflaredPath = "cloudflared"
	}
	if util.ValidatePort(cfg.HostRDPPort) != nil {
		cfg.HostRDPPort = model.DefaultRDPPort
	}
	if util.ValidatePort(cfg.ProxyPort) != nil {
		cfg.ProxyPort = model.DefaultProxyPort
	}
	if cfg.UI.RefreshSeconds <= 0 {
		cfg.UI.RefreshSeconds = util.DefaultRefreshSeconds
	}
	return cfg, nil
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
