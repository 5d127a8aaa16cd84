package vending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Storage layout. Both mappings follow the Solidity rule for
// `mapping(address => uint256)` declared at the given position, so deployed
// state stays readable by any ABI compatible tooling. The positions must
// never change.
const (
	balancesPosition          uint64 = 0
	distributionTimesPosition uint64 = 1
)

// mappingSlot returns keccak256(leftpad32(account) ‖ uint256(position)).
func mappingSlot(account common.Address, position uint64) common.Hash {
	key := common.LeftPadBytes(account.Bytes(), common.HashLength)
	pos := uint256.NewInt(position).Bytes32()
	return crypto.Keccak256Hash(key, pos[:])
}

// BalanceSlot is the storage slot holding account's cupcake count.
func BalanceSlot(account common.Address) common.Hash {
	return mappingSlot(account, balancesPosition)
}

// DistributionTimeSlot is the storage slot holding the time of account's
// most recent grant.
func DistributionTimeSlot(account common.Address) common.Hash {
	return mappingSlot(account, distributionTimesPosition)
}
