package host

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"cupcakechain/core/types"
	"cupcakechain/storage"
)

var (
	// ErrNoContract is returned when a message targets an address without a
	// registered contract.
	ErrNoContract = errors.New("host: no contract at address")
	// ErrContractExists marks a second registration at the same address.
	ErrContractExists = errors.New("host: contract already registered")
	// ErrWriteProtection is returned when a read-only call attempts a write.
	ErrWriteProtection = errors.New("host: write protection")
	// ErrExecutionReverted wraps every error that aborted an invocation.
	ErrExecutionReverted = errors.New("host: execution reverted")
)

// Contract is a program hosted at an address. Run receives the raw calldata
// and returns the raw return data. Any error aborts the invocation and rolls
// back its writes.
type Contract interface {
	Run(ctx Context, input []byte) ([]byte, error)
}

// ContractFunc adapts a function to the Contract interface.
type ContractFunc func(ctx Context, input []byte) ([]byte, error)

// Run implements Contract.
func (f ContractFunc) Run(ctx Context, input []byte) ([]byte, error) { return f(ctx, input) }

// Host executes messages against registered contracts. Every invocation is
// an atomic transaction over the host's world state.
//
// Host is not safe for concurrent use; callers serialise execution.
type Host struct {
	state     *StateDB
	contracts map[common.Address]Contract
	logger    *slog.Logger
}

// New constructs a host over db. A nil logger falls back to slog.Default.
func New(db storage.Database, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		state:     NewStateDB(db),
		contracts: make(map[common.Address]Contract),
		logger:    logger,
	}
}

// State exposes the world state.
func (h *Host) State() *StateDB { return h.state }

// Register installs contract at addr.
func (h *Host) Register(addr common.Address, contract Contract) error {
	if contract == nil {
		return fmt.Errorf("host: nil contract for %s", addr.Hex())
	}
	if _, exists := h.contracts[addr]; exists {
		return fmt.Errorf("%w: %s", ErrContractExists, addr.Hex())
	}
	h.contracts[addr] = contract
	return nil
}

// Apply executes msg as a transaction in the block described by header. The
// transaction's writes stay pending until Stage; a failed transaction leaves
// no writes behind.
func (h *Host) Apply(header *types.BlockHeader, msg *types.Message) *types.Receipt {
	receipt := &types.Receipt{
		TxHash:      msg.Hash(),
		BlockHeight: header.Height,
		Timestamp:   header.Timestamp,
	}
	ret, inv, err := h.execute(header, msg, false)
	receipt.GasUsed = inv.gas.Used()
	receipt.Console = inv.console
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.Error = err.Error()
		return receipt
	}
	receipt.Status = types.ReceiptStatusSuccessful
	receipt.ReturnData = ret
	receipt.Events = inv.events
	return receipt
}

// Call executes msg without keeping any of its writes.
func (h *Host) Call(header *types.BlockHeader, msg *types.Message) ([]byte, error) {
	ret, _, err := h.execute(header, msg, true)
	return ret, err
}

func (h *Host) execute(header *types.BlockHeader, msg *types.Message, readOnly bool) (ret []byte, inv *invocation, err error) {
	snapshot := h.state.Snapshot()
	inv = newInvocation(h.state, header, msg, readOnly)
	defer func() {
		if r := recover(); r != nil {
			ret, err = nil, fmt.Errorf("%w: panic: %v", ErrExecutionReverted, r)
		}
		if err != nil || readOnly {
			h.state.RevertToSnapshot(snapshot)
		}
		for _, line := range inv.console {
			h.logger.Debug("contract console",
				"contract", msg.To.Hex(),
				"height", header.Height,
				"line", line)
		}
	}()

	if err := inv.gas.Consume(IntrinsicGas(msg.Data)); err != nil {
		return nil, inv, fmt.Errorf("%w: intrinsic gas: %w", ErrExecutionReverted, err)
	}
	contract, ok := h.contracts[msg.To]
	if !ok {
		return nil, inv, fmt.Errorf("%w: %w: %s", ErrExecutionReverted, ErrNoContract, msg.To.Hex())
	}
	out, runErr := contract.Run(inv, msg.Data)
	if runErr != nil {
		return nil, inv, fmt.Errorf("%w: %w", ErrExecutionReverted, runErr)
	}
	return out, inv, nil
}

// Stage moves every pending write into batch.
func (h *Host) Stage(batch storage.Batch) { h.state.Stage(batch) }

// Discard drops every pending write.
func (h *Host) Discard() { h.state.Discard() }
