package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("SCANNER_RPC_URLS", "https://example.invalid/rpc")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "ethereum", cfg.Chain)
	assert.Equal(t, uint64(defaultGenesisBlock), cfg.GenesisBlock)
	assert.Equal(t, []string{"https://example.invalid/rpc"}, cfg.RPCEndpoints)
	assert.Equal(t, 60, cfg.ScanIntervalSec)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	path := writeYAML(t, "chain: ethereum\ngenesis_block: 16500000\nscan_interval_sec: 30\n")
	t.Setenv("SCANNER_RPC_URLS", "https://example.invalid/rpc")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(16500000), cfg.GenesisBlock)
	assert.Equal(t, 30, cfg.ScanIntervalSec)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	path := writeYAML(t, "chain: ethereum\ngenesis_block: 16500000\n")
	t.Setenv("SCANNER_RPC_URLS", "https://example.invalid/rpc")
	t.Setenv("SCANNER_GENESIS_BLOCK", "17000000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(17000000), cfg.GenesisBlock)
}

func TestBuildRPCURLsAddsKeyedEndpoints(t *testing.T) {
	t.Setenv("SCANNER_RPC_URLS", "")
	t.Setenv("ALCHEMY_API_KEY", "alchemykey")
	t.Setenv("INFURA_API_KEY", "infurakey")

	urls := buildRPCURLs()
	assert.Contains(t, urls, "https://eth-mainnet.g.alchemy.com/v2/alchemykey")
	assert.Contains(t, urls, "https://mainnet.infura.io/v3/infurakey")
}

func TestValidateRejectsNoProviders(t *testing.T) {
	cfg := defaults()
	err := cfg.Validate()
	assert.ErrorContains(t, err, "no RPC providers")
}

func TestValidateRejectsWrongChain(t *testing.T) {
	cfg := defaults()
	cfg.RPCEndpoints = []string{"https://example.invalid/rpc"}
	cfg.Chain = "polygon"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "unsupported chain")
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("true"))
	assert.True(t, parseBool("1"))
	assert.False(t, parseBool("false"))
	assert.False(t, parseBool("not-a-bool"))
}
