// internal/config/config.go
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	toml "github.com/pelletier/go-toml/v2"
)

// Environment variables that override file settings.
const (
	EnvMnemonic       = "PROOFMARK_MNEMONIC"
	EnvMnemonicLegacy = "MNEMONIC"
	EnvRPCURL         = "PROOFMARK_RPC_URL"

	// EnvKeystorePassphrase unlocks the encrypted keystore when no mnemonic
	// is set in the environment.
	EnvKeystorePassphrase = "PROOFMARK_KEYSTORE_PASSPHRASE"
)

// DefaultMnemonic is the well-known development mnemonic used by local
// Ethereum nodes. Never use it with real funds.
const DefaultMnemonic = "test test test test test test test test test test test junk"

// DefaultSchema is the EAS schema the payload is attached to.
const DefaultSchema = "bytes32 circuitId, bytes pubArgs, bytes proof"

// DefaultSchemaUID is the uid of DefaultSchema registered on a fresh local
// deployment with no resolver and revocable set.
const DefaultSchemaUID = "e8823cd52ad91871b24ac2276846d46f8b1e4c05965b3e9dac469d6c7a5e0fa9"

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Paths holds XDG-compliant paths for proofmark.
type Paths struct {
	ConfigDir    string // ~/.config/proofmark
	DataDir      string // ~/.local/share/proofmark
	ConfigFile   string // ~/.config/proofmark/config.toml
	AgentSocket  string // ~/.local/share/proofmark/agent.sock
	KeystorePath string // ~/.local/share/proofmark/mnemonic.key
}

// ExpandPath expands ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
// Panics if home directory cannot be determined when ~ expansion is needed.
func ExpandPath(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultPaths returns the default XDG-compliant paths.
// Panics if the user's home directory cannot be determined.
func DefaultPaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Sprintf("failed to get home directory: %v", err))
	}
	configDir := filepath.Join(home, ".config", "proofmark")
	dataDir := filepath.Join(home, ".local", "share", "proofmark")

	return Paths{
		ConfigDir:    configDir,
		DataDir:      dataDir,
		ConfigFile:   filepath.Join(configDir, "config.toml"),
		AgentSocket:  filepath.Join(dataDir, "agent.sock"),
		KeystorePath: filepath.Join(dataDir, "mnemonic.key"),
	}
}

// EnsureDirectories creates config and data directories if they don't exist.
func (p Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0700); err != nil {
		return err
	}
	return os.MkdirAll(p.DataDir, 0700)
}

// Config holds configuration shared by proofmark-cli and proofmark-agent.
type Config struct {
	Chain   ChainConfig   `toml:"chain"`
	Circuit CircuitConfig `toml:"circuit"`
	Wallet  WalletConfig  `toml:"wallet"`
	Agent   AgentConfig   `toml:"agent"`
}

// ChainConfig holds the node endpoint and EAS contract settings.
type ChainConfig struct {
	RPCURL                string `toml:"rpc_url"`
	ChainID               int64  `toml:"chain_id"`
	EASAddress            string `toml:"eas_address"`
	SchemaRegistryAddress string `toml:"schema_registry_address"`
	SchemaUID             string `toml:"schema_uid"`
	FromBlock             uint64 `toml:"from_block"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
}

// CircuitConfig holds circuit artifact locations.
type CircuitConfig struct {
	TargetDir        string `toml:"target_dir"`
	ProofPath        string `toml:"proof_path"`
	PublicParamsPath string `toml:"public_params_path"`
}

// WalletConfig holds signing key settings. The mnemonic itself is read
// from the environment or the encrypted keystore, never from this file.
type WalletConfig struct {
	DerivationPath string `toml:"derivation_path"`
	KeystorePath   string `toml:"keystore_path"`
}

// AgentConfig holds proofmark-agent settings.
type AgentConfig struct {
	SocketPath      string   `toml:"socket_path"`
	DebounceMillis  int      `toml:"debounce_millis"`
	ExcludePatterns []string `toml:"exclude"`
}

// Default returns a Config with sensible defaults for a local development node.
func Default() Config {
	paths := DefaultPaths()
	return Config{
		Chain: ChainConfig{
			RPCURL:                "http://localhost:8545",
			ChainID:               31337,
			EASAddress:            "0xe7f1725e7734ce288f8367e1bb143e90bb3f0512",
			SchemaRegistryAddress: "0x5fbdb2315678afecb367f032d93f642f64180aa3",
			SchemaUID:             DefaultSchemaUID,
			FromBlock:             0,
			TimeoutSeconds:        30,
		},
		Circuit: CircuitConfig{
			TargetDir:        "./circuit/target",
			ProofPath:        "./circuit/proofs/circuit.proof",
			PublicParamsPath: "./circuit/Verifier.toml",
		},
		Wallet: WalletConfig{
			DerivationPath: "m/44'/60'/0'/0/0",
			KeystorePath:   paths.KeystorePath,
		},
		Agent: AgentConfig{
			SocketPath:      paths.AgentSocket,
			DebounceMillis:  250,
			ExcludePatterns: []string{".git", ".tmp"},
		},
	}
}

// Load loads a Config from a TOML file on top of the defaults, applies
// environment overrides and validates the result.
// Paths with ~ are expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.ApplyEnv()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to the defaults
// (with environment overrides) otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := Default()
	cfg.ApplyEnv()
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if url := os.Getenv(EnvRPCURL); url != "" {
		c.Chain.RPCURL = url
	}
}

func (c *Config) expandPaths() {
	c.Circuit.TargetDir = ExpandPath(c.Circuit.TargetDir)
	c.Circuit.ProofPath = ExpandPath(c.Circuit.ProofPath)
	c.Circuit.PublicParamsPath = ExpandPath(c.Circuit.PublicParamsPath)
	c.Wallet.KeystorePath = ExpandPath(c.Wallet.KeystorePath)
	c.Agent.SocketPath = ExpandPath(c.Agent.SocketPath)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("%w: chain.rpc_url is required", ErrInvalidConfig)
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("%w: chain.chain_id must be positive", ErrInvalidConfig)
	}
	if !common.IsHexAddress(c.Chain.EASAddress) {
		return fmt.Errorf("%w: chain.eas_address %q is not an address", ErrInvalidConfig, c.Chain.EASAddress)
	}
	if !common.IsHexAddress(c.Chain.SchemaRegistryAddress) {
		return fmt.Errorf("%w: chain.schema_registry_address %q is not an address", ErrInvalidConfig, c.Chain.SchemaRegistryAddress)
	}
	if _, err := c.Chain.Schema(); err != nil {
		return fmt.Errorf("%w: chain.schema_uid: %v", ErrInvalidConfig, err)
	}
	if c.Circuit.TargetDir == "" {
		return fmt.Errorf("%w: circuit.target_dir is required", ErrInvalidConfig)
	}
	if c.Circuit.ProofPath == "" || c.Circuit.PublicParamsPath == "" {
		return fmt.Errorf("%w: circuit.proof_path and circuit.public_params_path are required", ErrInvalidConfig)
	}
	// Default timeout if not set
	if c.Chain.TimeoutSeconds <= 0 {
		c.Chain.TimeoutSeconds = 30
	}
	if c.Agent.DebounceMillis < 0 {
		c.Agent.DebounceMillis = 0
	}
	return nil
}

// Schema decodes SchemaUID. An empty uid yields the zero hash, which
// disables schema filtering when reading records.
func (c ChainConfig) Schema() (common.Hash, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(c.SchemaUID, "0x"), "0X")
	if s == "" {
		return common.Hash{}, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("expected %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

// Mnemonic returns the signing mnemonic from the environment, or "" when
// none is set.
func Mnemonic() string {
	if m := os.Getenv(EnvMnemonic); m != "" {
		return m
	}
	return os.Getenv(EnvMnemonicLegacy)
}
