package host

import (
	"github.com/ethereum/go-ethereum/common"

	"cupcakechain/core/types"
)

// Context is the capability set the host hands to a contract for the
// duration of one invocation.
type Context interface {
	// Address is the address the running contract is registered at.
	Address() common.Address
	// Caller is the account that submitted the invocation.
	Caller() common.Address
	BlockHeight() uint64
	// BlockTimestamp is the block time in seconds. It is constant for the
	// whole invocation.
	BlockTimestamp() uint64
	GetState(slot common.Hash) (common.Hash, error)
	SetState(slot common.Hash, value common.Hash) error
	// Console records a diagnostic line. Console output is not state.
	Console(msg string)
	// Emit records an event; events of reverted invocations are dropped.
	Emit(ev *types.Event)
}

type invocation struct {
	state    *StateDB
	header   *types.BlockHeader
	msg      *types.Message
	gas      *GasMeter
	readOnly bool
	warm     map[common.Hash]struct{}
	console  []string
	events   []*types.Event
}

func newInvocation(state *StateDB, header *types.BlockHeader, msg *types.Message, readOnly bool) *invocation {
	return &invocation{
		state:    state,
		header:   header,
		msg:      msg,
		gas:      NewGasMeter(msg.GasLimit),
		readOnly: readOnly,
		warm:     make(map[common.Hash]struct{}),
	}
}

func (i *invocation) Address() common.Address { return i.msg.To }
func (i *invocation) Caller() common.Address  { return i.msg.From }
func (i *invocation) BlockHeight() uint64     { return i.header.Height }
func (i *invocation) BlockTimestamp() uint64  { return i.header.Timestamp }

func (i *invocation) touch(slot common.Hash) bool {
	_, warm := i.warm[slot]
	i.warm[slot] = struct{}{}
	return warm
}

func (i *invocation) GetState(slot common.Hash) (common.Hash, error) {
	if err := i.gas.Consume(sloadGas(i.touch(slot))); err != nil {
		return common.Hash{}, err
	}
	return i.state.GetState(i.msg.To, slot)
}

func (i *invocation) SetState(slot common.Hash, value common.Hash) error {
	if i.readOnly {
		return ErrWriteProtection
	}
	i.touch(slot)
	original, err := i.state.CommittedState(i.msg.To, slot)
	if err != nil {
		return err
	}
	if err := i.gas.Consume(sstoreGas(original, value)); err != nil {
		return err
	}
	i.state.SetState(i.msg.To, slot, value)
	return nil
}

func (i *invocation) Console(msg string) {
	i.console = append(i.console, msg)
}

func (i *invocation) Emit(ev *types.Event) {
	if ev == nil {
		return
	}
	i.events = append(i.events, ev)
}
