package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Ledger LedgerConfig `mapstructure:"ledger"`
	Shield ShieldConfig `mapstructure:"shield"`
	Prover ProverConfig `mapstructure:"prover"`
	Log    LogConfig    `mapstructure:"log"`
}

type LedgerConfig struct {
	Mode    string        `mapstructure:"mode"` // rpc, mem
	RPCURL  string        `mapstructure:"rpc_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Mint    string        `mapstructure:"mint"` // 32-byte hex token mint
}

// MintBytes decodes the configured mint address. Empty means the zero mint.
func (l LedgerConfig) MintBytes() ([32]byte, error) {
	var out [32]byte
	if l.Mint == "" {
		return out, nil
	}
	raw, err := hexutil.Decode(l.Mint)
	if err != nil {
		return out, fmt.Errorf("ledger.mint: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("ledger.mint: want 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

type ShieldConfig struct {
	// Vocabulary is the comma-separated list of allowed amounts in base
	// units. Every wallet must use the same list or scans miss commitments.
	Vocabulary      string `mapstructure:"vocabulary"`
	MaxSlotIndex    uint32 `mapstructure:"max_slot_index"`
	MaxSlotAttempts int    `mapstructure:"max_slot_attempts"`
	SigningMessage  string `mapstructure:"signing_message"`
}

// Amounts parses the vocabulary into base-unit values.
func (s ShieldConfig) Amounts() ([]uint64, error) {
	parts := strings.Split(s.Vocabulary, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("shield.vocabulary: %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("shield.vocabulary is empty")
	}
	return out, nil
}

type ProverConfig struct {
	ArtifactDir string `mapstructure:"artifact_dir"` // proving/verifying key cache
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: VEIL_.
// Nested keys use underscore: VEIL_LEDGER_RPC_URL, VEIL_LOG_LEVEL, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("ledger.mode", "rpc")
	v.SetDefault("ledger.rpc_url", "http://localhost:8899")
	v.SetDefault("ledger.timeout", "30s")
	v.SetDefault("ledger.mint", "")
	v.SetDefault("shield.vocabulary",
		"10000000,50000000,100000000,500000000,1000000000,5000000000,10000000000,50000000000,100000000000")
	v.SetDefault("shield.max_slot_index", 64)
	v.SetDefault("shield.max_slot_attempts", 16)
	v.SetDefault("shield.signing_message", "")
	v.SetDefault("prover.artifact_dir", ".veilpay/keys")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: VEIL_LEDGER_MODE -> ledger.mode
	v.SetEnvPrefix("VEIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
