package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `Env = "devnet"
DataDir = "/var/lib/cupcakes"
RPCAddress = "0.0.0.0:9000"
StorageBackend = "BBOLT"
ContractAddress = "0x11b57fe348584f042e436c6bf7c3c3def171de49"
TxGasLimit = 150000
IndexerDSN = "/var/lib/cupcakes/index.db"
TrustedProxies = ["10.0.0.1", "172.16.0.0/12"]

[RateLimit]
RequestsPerMinute = 120
Burst = 5
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "devnet", cfg.Env)
	require.Equal(t, "bbolt", cfg.StorageBackend)
	require.Equal(t, uint64(150000), cfg.TxGasLimit)
	require.Equal(t, common.HexToAddress("0x11b57fe348584f042e436c6bf7c3c3def171de49"), cfg.Contract())
	require.Equal(t, 120.0, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 5, cfg.RateLimit.Burst)
	require.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.TrustedProxies)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `dataDir: ./data
storageBackend: memory
rateLimit:
  requestsPerMinute: 30
  burst: 2
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.StorageBackend)
	require.Equal(t, 30.0, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, uint64(DefaultTxGasLimit), cfg.TxGasLimit)
	require.Equal(t, DefaultContractAddress, cfg.ContractAddress)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("CooldownSeconds = 1\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":     func(c *Config) { c.StorageBackend = "rocksdb" },
		"missing data dir":    func(c *Config) { c.DataDir = "" },
		"bad contract":        func(c *Config) { c.ContractAddress = "0xnope" },
		"gas below intrinsic": func(c *Config) { c.TxGasLimit = 20_000 },
		"negative rate":       func(c *Config) { c.RateLimit.RequestsPerMinute = -1 },
		"negative burst":      func(c *Config) { c.RateLimit.Burst = -1 },
		"bad proxy address":   func(c *Config) { c.TrustedProxies = []string{"proxy.local"} },
		"bad proxy range":     func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/33"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.TrustedProxies = []string{"10.0.0.1", " 192.168.0.0/16 ", "::1"}
	require.NoError(t, cfg.Validate())
}
