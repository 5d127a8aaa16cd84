package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"cupcakechain/storage"
)

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.StorageBackend)
	}
	if c.StorageBackend != storage.BackendMemory && c.DataDir == "" {
		return fmt.Errorf("storage: DataDir required for backend %q", c.StorageBackend)
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("contract: invalid address %q", c.ContractAddress)
	}
	if c.TxGasLimit < params.TxGas {
		return fmt.Errorf("gas: TxGasLimit %d below intrinsic cost %d", c.TxGasLimit, params.TxGas)
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit: RequestsPerMinute < 0")
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: Burst < 0")
	}
	for _, entry := range c.TrustedProxies {
		if !validProxy(strings.TrimSpace(entry)) {
			return fmt.Errorf("rpc: invalid trusted proxy %q", entry)
		}
	}
	return nil
}

// Contract returns the parsed contract address.
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

func validProxy(entry string) bool {
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}
