package vending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"cupcakechain/core/types"
)

// Cooldown is the minimum number of seconds between two grants to the same
// account.
const Cooldown = 5

var (
	cooldown = uint256.NewInt(Cooldown)
	one      = uint256.NewInt(1)
)

// Console receives refusal diagnostics.
type Console interface {
	Console(msg string)
}

// Emitter receives grant events.
type Emitter interface {
	Emit(ev *types.Event)
}

// Machine is the grant state machine. It is a function of the store
// snapshot, the clock and the requested account; all persistent effects go
// through the store.
type Machine struct {
	store   *AccountStore
	clock   Clock
	console Console
	emitter Emitter
}

// Option customises a Machine.
type Option func(*Machine)

// WithConsole routes refusal diagnostics to c.
func WithConsole(c Console) Option {
	return func(m *Machine) { m.console = c }
}

// WithEmitter routes grant events to e.
func WithEmitter(e Emitter) Option {
	return func(m *Machine) { m.emitter = e }
}

// NewMachine constructs a state machine over store and clock.
func NewMachine(store *AccountStore, clock Clock, opts ...Option) *Machine {
	m := &Machine{store: store, clock: clock}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EarliestNextGrant returns last + Cooldown, saturating at the maximum
// 256-bit value.
func EarliestNextGrant(last *uint256.Int) *uint256.Int {
	next, overflow := new(uint256.Int).AddOverflow(last, cooldown)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return next
}

// GiveCupcakeTo grants one cupcake to account when at least Cooldown seconds
// have passed since its previous grant. A refusal returns false and leaves
// the store untouched. Errors come from the host or from a balance overflow
// and must abort the surrounding transaction.
func (m *Machine) GiveCupcakeTo(account common.Address) (bool, error) {
	last, err := m.store.DistributionTimes.Get(account)
	if err != nil {
		return false, err
	}
	now := m.clock.Now()
	if EarliestNextGrant(last).Gt(now) {
		m.refuse(account, last, now)
		return false, nil
	}

	balance, err := m.store.Balances.Get(account)
	if err != nil {
		return false, err
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, one)
	if overflow {
		return false, ErrBalanceOverflow
	}
	if err := m.store.Balances.Set(account, next); err != nil {
		return false, err
	}
	if err := m.store.DistributionTimes.Set(account, now); err != nil {
		return false, err
	}
	if m.emitter != nil {
		m.emitter.Emit(CupcakeGranted{Account: account, Balance: next, GrantedAt: now}.Event())
	}
	return true, nil
}

func (m *Machine) refuse(account common.Address, last, now *uint256.Int) {
	if m.console == nil {
		return
	}
	m.console.Console(fmt.Sprintf(
		"HTTP 429: Too Many Cupcakes (%s must wait at least %d seconds between cupcakes; last=%s now=%s)",
		account.Hex(), Cooldown, last.Dec(), now.Dec()))
}

// CupcakeBalanceFor returns the number of cupcakes account has received.
func (m *Machine) CupcakeBalanceFor(account common.Address) (*uint256.Int, error) {
	return m.store.Balances.Get(account)
}

// LastDistribution returns the time of account's most recent grant, zero if
// it never received one.
func (m *Machine) LastDistribution(account common.Address) (*uint256.Int, error) {
	return m.store.DistributionTimes.Get(account)
}
