package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmanager/internal/config"
)

func TestCheckPreFlight_MissingKeyDirectory(t *testing.T) {
	cfg := &config.Config{Ethereum: config.EthereumConfig{KeyPath: "/does/not/exist", Password: "x"}}
	err := checkPreFlight(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_path")
}

func TestCheckPreFlight_EmptyKeyDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Ethereum: config.EthereumConfig{KeyPath: dir, Password: "x"}}
	err := checkPreFlight(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key files")
}

func TestCheckPreFlight_MissingPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.json"), []byte("{}"), 0600))
	cfg := &config.Config{Ethereum: config.EthereumConfig{KeyPath: dir, Password: ""}}
	err := checkPreFlight(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestKeyFilePath_ReturnsFirstFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.json"), []byte("{}"), 0600))
	cfg := &config.Config{Ethereum: config.EthereumConfig{KeyPath: dir, Password: "x"}}

	path, err := KeyFilePath(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "key.json"), path)
}
