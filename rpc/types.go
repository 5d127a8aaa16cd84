package rpc

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"cupcakechain/core/types"
	"cupcakechain/indexer"
)

// HealthResponse reports liveness and the current chain head.
type HealthResponse struct {
	Status string      `json:"status"`
	Height uint64      `json:"height"`
	Head   common.Hash `json:"head"`
}

// BalanceResponse is returned by GET /v1/cupcakes/{address}. Balance is a
// base-10 string because it is an unsigned 256-bit quantity.
type BalanceResponse struct {
	Address common.Address `json:"address"`
	Balance string         `json:"balance"`
}

// GiveRequest is the optional body of POST /v1/cupcakes/{address}.
type GiveRequest struct {
	From string `json:"from,omitempty"`
}

// GrantResponse summarises a giveCupcakeTo transaction.
type GrantResponse struct {
	Granted     bool        `json:"granted"`
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	Timestamp   uint64      `json:"timestamp"`
	GasUsed     uint64      `json:"gasUsed"`
}

// HistoryResponse lists indexed grants, newest first.
type HistoryResponse struct {
	Address common.Address  `json:"address"`
	Grants  []indexer.Grant `json:"grants"`
}

// MessageRequest carries raw ABI calldata for /v1/call and
// /v1/transactions.
type MessageRequest struct {
	From string `json:"from,omitempty"`
	Data string `json:"data"`
	Gas  uint64 `json:"gas,omitempty"`
}

// CallResponse holds the raw ABI return data of a read-only call.
type CallResponse struct {
	Result hexutil.Bytes `json:"result"`
}

// ReceiptResponse is the wire form of a transaction receipt.
type ReceiptResponse struct {
	TxHash      common.Hash    `json:"txHash"`
	BlockNumber uint64         `json:"blockNumber"`
	Timestamp   uint64         `json:"timestamp"`
	Status      uint64         `json:"status"`
	GasUsed     uint64         `json:"gasUsed"`
	ReturnData  hexutil.Bytes  `json:"returnData"`
	Events      []*types.Event `json:"events,omitempty"`
	Console     []string       `json:"console,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func newReceiptResponse(r *types.Receipt) ReceiptResponse {
	return ReceiptResponse{
		TxHash:      r.TxHash,
		BlockNumber: r.BlockHeight,
		Timestamp:   r.Timestamp,
		Status:      r.Status,
		GasUsed:     r.GasUsed,
		ReturnData:  r.ReturnData,
		Events:      r.Events,
		Console:     r.Console,
		Error:       r.Error,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}
