package vending

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"cupcakechain/core/types"
)

const (
	// EventTypeCupcakeGranted is emitted for every successful grant.
	EventTypeCupcakeGranted = "vending.cupcakeGranted"
)

// CupcakeGranted describes a successful grant.
type CupcakeGranted struct {
	Account   common.Address
	Balance   *uint256.Int
	GrantedAt *uint256.Int
}

func (CupcakeGranted) EventType() string { return EventTypeCupcakeGranted }

// Event returns the canonical event payload.
func (e CupcakeGranted) Event() *types.Event {
	attrs := map[string]string{
		"account": strings.ToLower(e.Account.Hex()),
	}
	if e.Balance != nil {
		attrs["balance"] = e.Balance.Dec()
	}
	if e.GrantedAt != nil {
		attrs["grantedAt"] = e.GrantedAt.Dec()
	}
	return &types.Event{Type: EventTypeCupcakeGranted, Attributes: attrs}
}
