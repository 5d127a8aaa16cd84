package vending

import "errors"

var (
	// ErrBalanceOverflow aborts a grant whose increment would wrap the
	// 256-bit cupcake counter.
	ErrBalanceOverflow = errors.New("vending: cupcake balance overflow")
	// ErrUnknownSelector is returned for calldata whose selector matches no
	// exported operation.
	ErrUnknownSelector = errors.New("vending: unknown selector")
	// ErrInvalidCalldata marks calldata that cannot be decoded for the
	// selected operation.
	ErrInvalidCalldata = errors.New("vending: invalid calldata")
)
