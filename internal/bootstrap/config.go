package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"fleetmanager/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation: the
// key storage directory must exist and contain at least one key file, since
// the marketplace client needs one to sign with.
func checkPreFlight(cfg *Config) error {
	entries, err := os.ReadDir(cfg.Ethereum.KeyPath)
	if err != nil {
		return fmt.Errorf("ethereum key_path %q: %w", cfg.Ethereum.KeyPath, err)
	}

	hasKeyFile := false
	for _, e := range entries {
		if !e.IsDir() {
			hasKeyFile = true
			break
		}
	}
	if !hasKeyFile {
		return fmt.Errorf("ethereum key_path %q contains no key files", cfg.Ethereum.KeyPath)
	}

	if cfg.Ethereum.Password == "" {
		return fmt.Errorf("ethereum.password is required")
	}

	return nil
}

// KeyFilePath returns the path to the first key file found under the
// configured key storage directory, mirroring the original loader's
// "pick the first file" behavior.
func KeyFilePath(cfg *Config) (string, error) {
	entries, err := os.ReadDir(cfg.Ethereum.KeyPath)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() {
			return filepath.Join(cfg.Ethereum.KeyPath, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no key files found under %q", cfg.Ethereum.KeyPath)
}
