package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "rpc", cfg.Ledger.Mode)
	assert.Equal(t, "http://localhost:8899", cfg.Ledger.RPCURL)
	assert.Equal(t, 30*time.Second, cfg.Ledger.Timeout)

	assert.Equal(t, uint32(64), cfg.Shield.MaxSlotIndex)
	assert.Equal(t, 16, cfg.Shield.MaxSlotAttempts)

	amounts, err := cfg.Shield.Amounts()
	require.NoError(t, err)
	assert.Len(t, amounts, 9)
	assert.Equal(t, uint64(10_000_000), amounts[0])
	assert.Equal(t, uint64(100_000_000_000), amounts[len(amounts)-1])

	assert.Equal(t, ".veilpay/keys", cfg.Prover.ArtifactDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)
}

func TestLoadFromYAMLFile(t *testing.T) {
	content := []byte(`
ledger:
  mode: "mem"
  rpc_url: "http://ledger.example.com:8899"
  timeout: "5s"
  mint: "0x0101010101010101010101010101010101010101010101010101010101010101"
shield:
  vocabulary: "100, 200, 300"
  max_slot_index: 8
  max_slot_attempts: 4
  signing_message: "test shield v9"
prover:
  artifact_dir: "/tmp/keys"
log:
  level: "debug"
  pretty: true
`)
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, content, 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "mem", cfg.Ledger.Mode)
	assert.Equal(t, "http://ledger.example.com:8899", cfg.Ledger.RPCURL)
	assert.Equal(t, 5*time.Second, cfg.Ledger.Timeout)

	mint, err := cfg.Ledger.MintBytes()
	require.NoError(t, err)
	assert.Equal(t, byte(1), mint[0])
	assert.Equal(t, byte(1), mint[31])

	amounts, err := cfg.Shield.Amounts()
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 200, 300}, amounts)

	assert.Equal(t, uint32(8), cfg.Shield.MaxSlotIndex)
	assert.Equal(t, 4, cfg.Shield.MaxSlotAttempts)
	assert.Equal(t, "test shield v9", cfg.Shield.SigningMessage)
	assert.Equal(t, "/tmp/keys", cfg.Prover.ArtifactDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VEIL_LEDGER_MODE", "mem")
	t.Setenv("VEIL_LEDGER_RPC_URL", "http://env-host:8899")
	t.Setenv("VEIL_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mem", cfg.Ledger.Mode)
	assert.Equal(t, "http://env-host:8899", cfg.Ledger.RPCURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestMintBytesRejectsBadLength(t *testing.T) {
	l := LedgerConfig{Mint: "0x0102"}
	_, err := l.MintBytes()
	require.Error(t, err)
}

func TestMintBytesEmptyIsZero(t *testing.T) {
	l := LedgerConfig{}
	mint, err := l.MintBytes()
	require.NoError(t, err)
	assert.Equal(t, [32]byte{}, mint)
}

func TestAmountsRejectsGarbage(t *testing.T) {
	s := ShieldConfig{Vocabulary: "100,abc"}
	_, err := s.Amounts()
	require.Error(t, err)

	s = ShieldConfig{Vocabulary: " , "}
	_, err = s.Amounts()
	require.Error(t, err)
}
