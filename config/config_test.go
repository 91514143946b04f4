// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vote.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRelayURL, cfg.RelayURL)
	assert.Equal(t, VariantCID, cfg.Variant)
	assert.Equal(t, "voteSecret", cfg.VaultNamespace)
	assert.False(t, cfg.ExclusionCarryOver)
	assert.Error(t, cfg.RequireLedger())
}

func TestLoadConfigMissingFileIsIgnored(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
rpcUrl: http://127.0.0.1:8545
contractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
startBlock: 12
relayTimeout: 3s
fetchTimeout: 500ms
tallyWorkers: 4
exclusionCarryOver: true
variant: commit-reveal
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	assert.Equal(t, uint64(12), cfg.StartBlock)
	assert.Equal(t, 3*time.Second, cfg.RelayTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.FetchTimeout)
	assert.Equal(t, 4, cfg.TallyWorkers)
	assert.Equal(t, VariantCommitReveal, cfg.Variant)
	assert.True(t, cfg.Policy().ExclusionCarryOver)
	assert.NoError(t, cfg.RequireLedger())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "relayUrl: http://file:1\nexclusionCarryOver: true\n")
	t.Setenv("VOTE_RELAY_URL", "http://env:2")
	t.Setenv("VOTE_EXCLUSION_CARRY_OVER", "false")
	t.Setenv("VOTE_TALLY_WORKERS", "2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:2", cfg.RelayURL)
	assert.False(t, cfg.ExclusionCarryOver)
	assert.Equal(t, 2, cfg.TallyWorkers)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "rpcURL: x\n"},
		{"bad variant", "variant: plain\n"},
		{"bad contract", "contractAddress: nope\n"},
		{"negative workers", "tallyWorkers: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := defaults()
	assert.Same(t, cfg, FromContext(WithContext(context.Background(), cfg)))
}
