package vending

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"cupcakechain/host"
)

const (
	MethodGiveCupcakeTo        = "giveCupcakeTo"
	MethodGetCupcakeBalanceFor = "getCupcakeBalanceFor"
)

// ABIJSON is the Solidity compatible interface of the vending machine.
const ABIJSON = `[
	{
		"type": "function",
		"name": "giveCupcakeTo",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "userAddress", "type": "address"}],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "getCupcakeBalanceFor",
		"stateMutability": "view",
		"inputs": [{"name": "userAddress", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	}
]`

// ABI is the parsed form of ABIJSON.
var ABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("vending: parse abi: %v", err))
	}
	return parsed
}

// Contract exposes the vending machine to the host through selector based
// dispatch. It holds no state of its own: both mappings live in host
// storage and are bound per invocation.
type Contract struct{}

// NewContract returns the vending machine contract.
func NewContract() *Contract { return &Contract{} }

// Run implements host.Contract.
func (c *Contract) Run(ctx host.Context, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: calldata shorter than a selector", ErrUnknownSelector)
	}
	method, err := ABI.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %x", ErrUnknownSelector, input[:4])
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCalldata, method.Name, err)
	}
	account, ok := args[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unexpected argument %T", ErrInvalidCalldata, method.Name, args[0])
	}

	machine := NewMachine(NewAccountStore(ctx), NewBlockClock(ctx), WithConsole(ctx), WithEmitter(ctx))
	switch method.Name {
	case MethodGiveCupcakeTo:
		granted, err := machine.GiveCupcakeTo(account)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(granted)
	case MethodGetCupcakeBalanceFor:
		balance, err := machine.CupcakeBalanceFor(account)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(balance.ToBig())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSelector, method.Name)
	}
}

// Selector returns the 4-byte selector of the named method.
func Selector(name string) []byte {
	method, ok := ABI.Methods[name]
	if !ok {
		return nil
	}
	return bytes.Clone(method.ID)
}

// PackGiveCupcakeTo returns calldata for giveCupcakeTo(account).
func PackGiveCupcakeTo(account common.Address) ([]byte, error) {
	return ABI.Pack(MethodGiveCupcakeTo, account)
}

// PackGetCupcakeBalanceFor returns calldata for getCupcakeBalanceFor(account).
func PackGetCupcakeBalanceFor(account common.Address) ([]byte, error) {
	return ABI.Pack(MethodGetCupcakeBalanceFor, account)
}

// UnpackGranted decodes the return data of giveCupcakeTo.
func UnpackGranted(data []byte) (bool, error) {
	out, err := ABI.Unpack(MethodGiveCupcakeTo, data)
	if err != nil {
		return false, err
	}
	granted, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("vending: unexpected return type %T", out[0])
	}
	return granted, nil
}

// UnpackBalance decodes the return data of getCupcakeBalanceFor.
func UnpackBalance(data []byte) (*uint256.Int, error) {
	out, err := ABI.Unpack(MethodGetCupcakeBalanceFor, data)
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("vending: unexpected return type %T", out[0])
	}
	balance, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("vending: balance exceeds 256 bits")
	}
	return balance, nil
}
