package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Message is a single contract invocation. Any caller may target any
// contract; the host does not authenticate From.
type Message struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Data     []byte         `json:"data"`
	GasLimit uint64         `json:"gas"`
	Nonce    uint64         `json:"nonce"`
}

// Hash returns the keccak256 hash of the RLP encoded message.
func (m *Message) Hash() common.Hash {
	encoded, err := rlp.EncodeToBytes(m)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}
