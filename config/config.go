package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"cupcakechain/storage"
)

// DefaultContractAddress is where the vending machine is installed when the
// configuration does not say otherwise.
const DefaultContractAddress = "0x00000000000000000000000000000000c0ffee01"

// DefaultTxGasLimit covers a grant (two cold reads, two fresh writes) with
// ample headroom.
const DefaultTxGasLimit = 100_000

type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

type Config struct {
	Env             string    `toml:"Env" yaml:"env"`
	DataDir         string    `toml:"DataDir" yaml:"dataDir"`
	RPCAddress      string    `toml:"RPCAddress" yaml:"rpcAddress"`
	StorageBackend  string    `toml:"StorageBackend" yaml:"storageBackend"`
	ContractAddress string    `toml:"ContractAddress" yaml:"contractAddress"`
	TxGasLimit      uint64    `toml:"TxGasLimit" yaml:"txGasLimit"`
	IndexerDSN      string    `toml:"IndexerDSN" yaml:"indexerDSN"`
	LogFile         string    `toml:"LogFile" yaml:"logFile"`
	LogLevel        string    `toml:"LogLevel" yaml:"logLevel"`
	RateLimit       RateLimit `toml:"RateLimit" yaml:"rateLimit"`
	// AllowedOrigins are host patterns accepted for cross-origin websocket
	// subscriptions.
	AllowedOrigins []string `toml:"AllowedOrigins" yaml:"allowedOrigins"`
	// TrustedProxies are the IP addresses or CIDR ranges of reverse proxies
	// allowed to report the client address in forwarding headers.
	TrustedProxies []string `toml:"TrustedProxies" yaml:"trustedProxies"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		DataDir:         "./cupcake-data",
		RPCAddress:      "127.0.0.1:8545",
		StorageBackend:  storage.BackendLevelDB,
		ContractAddress: DefaultContractAddress,
		TxGasLimit:      DefaultTxGasLimit,
		LogLevel:        "info",
		RateLimit: RateLimit{
			RequestsPerMinute: 600,
			Burst:             20,
		},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults. Files ending in .yaml or .yml are decoded as YAML,
// everything else as TOML.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown keys in %s: %v", path, undecoded)
		}
	}

	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func (c *Config) normalise() {
	c.Env = strings.TrimSpace(c.Env)
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	if c.StorageBackend == "" {
		c.StorageBackend = storage.BackendLevelDB
	}
	if strings.TrimSpace(c.ContractAddress) == "" {
		c.ContractAddress = DefaultContractAddress
	}
	if c.TxGasLimit == 0 {
		c.TxGasLimit = DefaultTxGasLimit
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
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
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
