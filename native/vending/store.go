package vending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// storage abstracts the subset of host functionality required by the
// account store: word addressed reads and writes in the contract's own
// storage.
type storage interface {
	GetState(slot common.Hash) (common.Hash, error)
	SetState(slot common.Hash, value common.Hash) error
}

// Mapping is a handle on one account keyed mapping of 256-bit words.
type Mapping struct {
	store    storage
	position uint64
}

// Get returns the value stored for account, or zero if none exists.
func (m Mapping) Get(account common.Address) (*uint256.Int, error) {
	word, err := m.store.GetState(mappingSlot(account, m.position))
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(word[:]), nil
}

// Set replaces the value stored for account.
func (m Mapping) Set(account common.Address, value *uint256.Int) error {
	return m.store.SetState(mappingSlot(account, m.position), common.Hash(value.Bytes32()))
}

// AccountStore holds the two persistent mappings of the vending machine.
type AccountStore struct {
	Balances          Mapping
	DistributionTimes Mapping
}

// NewAccountStore binds both mappings to store.
func NewAccountStore(store storage) *AccountStore {
	return &AccountStore{
		Balances:          Mapping{store: store, position: balancesPosition},
		DistributionTimes: Mapping{store: store, position: distributionTimesPosition},
	}
}
