package host

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// ErrOutOfGas aborts an invocation whose gas limit is exhausted.
var ErrOutOfGas = errors.New("host: out of gas")

// GasMeter tracks gas consumption against a fixed limit.
type GasMeter struct {
	limit uint64
	used  uint64
}

// NewGasMeter returns a meter with the supplied limit.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Consume charges amount. When the charge would exceed the limit the meter
// is drained and ErrOutOfGas returned.
func (g *GasMeter) Consume(amount uint64) error {
	if amount > g.limit-g.used {
		g.used = g.limit
		return ErrOutOfGas
	}
	g.used += amount
	return nil
}

// Used reports the gas consumed so far.
func (g *GasMeter) Used() uint64 { return g.used }

// Remaining reports the gas left.
func (g *GasMeter) Remaining() uint64 { return g.limit - g.used }

// IntrinsicGas is the flat cost of a transaction carrying data.
func IntrinsicGas(data []byte) uint64 {
	gas := params.TxGas
	for _, b := range data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}

func sloadGas(warm bool) uint64 {
	if warm {
		return params.WarmStorageReadCostEIP2929
	}
	return params.ColdSloadCostEIP2929
}

func sstoreGas(original, value common.Hash) uint64 {
	if original == (common.Hash{}) && value != (common.Hash{}) {
		return params.SstoreSetGasEIP2200
	}
	return params.SstoreResetGasEIP2200
}
