package types

import "github.com/ethereum/go-ethereum/common"

const (
	// ReceiptStatusFailed is the status of a reverted invocation.
	ReceiptStatusFailed = uint64(0)
	// ReceiptStatusSuccessful is the status of a committed invocation.
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt captures the outcome of a single transaction.
type Receipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockHeight uint64      `json:"blockHeight"`
	Timestamp   uint64      `json:"timestamp"`
	Status      uint64      `json:"status"`
	GasUsed     uint64      `json:"gasUsed"`
	ReturnData  []byte      `json:"returnData"`
	Events      []*Event    `json:"events,omitempty"`
	// Console holds host console diagnostics. They are never persisted.
	Console []string `json:"console,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccessful
}
