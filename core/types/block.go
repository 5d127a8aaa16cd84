package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockHeader represents the header of a block. The timestamp is the host
// clock every contract invocation in the block observes.
type BlockHeader struct {
	Height    uint64      `json:"height"`
	Timestamp uint64      `json:"timestamp"`
	PrevHash  common.Hash `json:"prevHash"` // Hash of the previous block's header
	TxRoot    common.Hash `json:"txRoot"`   // Commitment to the ordered transactions in the block
}

// Block represents a full block: a header plus its totally ordered
// transactions.
type Block struct {
	Header       *BlockHeader
	Transactions []*Message
}

// NewBlock creates a new block from a header and a set of transactions. The
// header's TxRoot is derived from the transactions.
func NewBlock(header *BlockHeader, txs []*Message) *Block {
	header.TxRoot = TxRoot(txs)
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Hash returns the keccak256 hash of the RLP encoded header.
func (h *BlockHeader) Hash() common.Hash {
	encoded, err := rlp.EncodeToBytes(h)
	if err != nil {
		// Every field of the header is RLP encodable.
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

// TxRoot commits to the ordered list of transaction hashes.
func TxRoot(txs []*Message) common.Hash {
	if len(txs) == 0 {
		return common.Hash{}
	}
	buf := make([]byte, 0, len(txs)*common.HashLength)
	for _, tx := range txs {
		h := tx.Hash()
		buf = append(buf, h.Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}
