package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// Config is this client's repo-local configuration, loaded from
// <repo>/config.toml. Addresses are stored as their string form since
// address.Address has no native TOML marshaler.
type Config struct {
	ListenAddr string
	ClientAddr string
}

func defaultConfig() Config {
	return Config{
		ListenAddr: "/ip4/0.0.0.0/tcp/24002",
		ClientAddr: "t02000",
	}
}

func loadConfig(repoPath string) (Config, error) {
	cfg := defaultConfig()

	path := filepath.Join(repoPath, "config.toml")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, saveConfig(repoPath, cfg)
	}
	if err != nil {
		return Config{}, xerrors.Errorf("reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return Config{}, xerrors.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func saveConfig(repoPath string, cfg Config) error {
	if err := os.MkdirAll(repoPath, 0700); err != nil {
		return xerrors.Errorf("creating repo dir: %w", err)
	}

	f, err := os.Create(filepath.Join(repoPath, "config.toml"))
	if err != nil {
		return xerrors.Errorf("creating config.toml: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func homedirExpand(p string) (string, error) {
	if len(p) < 2 || p[:2] != "~/" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[2:]), nil
}
