package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"cupcakechain/core/types"
	"cupcakechain/host"
	"cupcakechain/native/vending"
	"cupcakechain/observability"
	"cupcakechain/storage"
)

var headKey = []byte("chain/head")

// ErrTransactionFailed is returned by the convenience helpers when the
// underlying transaction reverted.
var ErrTransactionFailed = errors.New("core: transaction failed")

// GrantIndexer receives the receipts of every committed block.
type GrantIndexer interface {
	Record(ctx context.Context, receipts []*types.Receipt) (int, error)
}

// Options configures a Node.
type Options struct {
	// Contract is the address the vending machine is installed at.
	Contract common.Address
	// TxGasLimit applies to messages that carry no gas limit of their own.
	TxGasLimit uint64
	Logger     *slog.Logger
	Metrics    *observability.VendingMetrics
	Indexer    GrantIndexer
}

// chainMeta is persisted under headKey together with the block's state
// writes.
type chainMeta struct {
	Head  types.BlockHeader
	Nonce uint64
}

// Node is the central controller, wiring storage, the host and the vending
// machine together. Every submission becomes a block; blocks are executed
// one at a time.
type Node struct {
	mu       sync.Mutex
	db       storage.Database
	host     *host.Host
	head     types.BlockHeader
	nonce    uint64
	contract common.Address
	gasLimit uint64
	nowFn    func() time.Time
	logger   *slog.Logger
	metrics  *observability.VendingMetrics
	indexer  GrantIndexer
	grants   grantStream
}

// NewNode restores the chain head from db and installs the vending machine.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gasLimit := opts.TxGasLimit
	if gasLimit == 0 {
		gasLimit = 100_000
	}
	n := &Node{
		db:       db,
		host:     host.New(db, logger),
		contract: opts.Contract,
		gasLimit: gasLimit,
		nowFn:    time.Now,
		logger:   logger,
		metrics:  opts.Metrics,
		indexer:  opts.Indexer,
	}
	if err := n.host.Register(opts.Contract, vending.NewContract()); err != nil {
		return nil, err
	}
	if err := n.loadHead(); err != nil {
		return nil, err
	}
	n.metrics.SetHead(n.head.Height)
	return n, nil
}

func (n *Node) loadHead() error {
	raw, err := n.db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("core: load head: %w", err)
	}
	var meta chainMeta
	if err := rlp.DecodeBytes(raw, &meta); err != nil {
		return fmt.Errorf("core: decode head: %w", err)
	}
	n.head = meta.Head
	n.nonce = meta.Nonce
	return nil
}

// SetNowFunc overrides the wall clock used to stamp new blocks. Primarily
// leveraged in tests to provide deterministic timestamps.
func (n *Node) SetNowFunc(now func() time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	n.nowFn = now
}

// Head returns the latest committed block header.
func (n *Node) Head() types.BlockHeader {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head
}

// Contract returns the vending machine's address.
func (n *Node) Contract() common.Address { return n.contract }

func (n *Node) nextTimestamp() uint64 {
	var ts uint64
	if unix := n.nowFn().Unix(); unix > 0 {
		ts = uint64(unix)
	}
	// Host time never goes backwards.
	if ts < n.head.Timestamp {
		ts = n.head.Timestamp
	}
	return ts
}

func (n *Node) prepare(msg *types.Message) *types.Message {
	prepared := *msg
	if prepared.To == (common.Address{}) {
		prepared.To = n.contract
	}
	if prepared.GasLimit == 0 {
		prepared.GasLimit = n.gasLimit
	}
	return &prepared
}

// Submit executes msg in a block of its own.
func (n *Node) Submit(ctx context.Context, msg *types.Message) (*types.Receipt, error) {
	receipts, err := n.SubmitBlock(ctx, []*types.Message{msg})
	if err != nil {
		return nil, err
	}
	return receipts[0], nil
}

// SubmitBlock executes msgs, in order, as one block and commits the result.
// A reverted transaction leaves no state behind but does not stop the block.
func (n *Node) SubmitBlock(ctx context.Context, msgs []*types.Message) ([]*types.Receipt, error) {
	if len(msgs) == 0 {
		return nil, errors.New("core: empty block")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	txs := make([]*types.Message, len(msgs))
	for i, msg := range msgs {
		txs[i] = n.prepare(msg)
		txs[i].Nonce = n.nonce + uint64(i)
	}
	block := types.NewBlock(&types.BlockHeader{
		Height:    n.head.Height + 1,
		Timestamp: n.nextTimestamp(),
		PrevHash:  n.head.Hash(),
	}, txs)

	receipts := make([]*types.Receipt, len(txs))
	for i, tx := range txs {
		receipts[i] = n.host.Apply(block.Header, tx)
		n.observe(tx, receipts[i])
	}

	meta := chainMeta{Head: *block.Header, Nonce: n.nonce + uint64(len(txs))}
	encoded, err := rlp.EncodeToBytes(&meta)
	if err != nil {
		n.host.Discard()
		return nil, fmt.Errorf("core: encode head: %w", err)
	}
	batch := n.db.NewBatch()
	n.host.Stage(batch)
	batch.Put(headKey, encoded)
	if err := batch.Write(); err != nil {
		return nil, fmt.Errorf("core: commit block %d: %w", block.Header.Height, err)
	}
	n.head = meta.Head
	n.nonce = meta.Nonce
	n.metrics.SetHead(n.head.Height)
	n.logger.Info("block committed",
		"height", n.head.Height,
		"timestamp", n.head.Timestamp,
		"txs", len(txs))

	n.publishGrants(receipts)
	if n.indexer != nil {
		if _, err := n.indexer.Record(ctx, receipts); err != nil {
			n.metrics.RecordIndexError()
			n.logger.Warn("index grants failed", "height", n.head.Height, "error", err)
		}
	}
	return receipts, nil
}

func (n *Node) observe(tx *types.Message, receipt *types.Receipt) {
	n.metrics.RecordTransaction(receipt.Succeeded(), receipt.GasUsed)
	if !receipt.Succeeded() {
		n.logger.Debug("transaction reverted",
			"tx", receipt.TxHash.Hex(),
			"error", receipt.Error)
		return
	}
	if tx.To != n.contract || !bytes.HasPrefix(tx.Data, vending.Selector(vending.MethodGiveCupcakeTo)) {
		return
	}
	if granted, err := vending.UnpackGranted(receipt.ReturnData); err == nil {
		n.metrics.RecordGrant(granted)
	}
}

// Call executes msg read-only against the head state.
func (n *Node) Call(ctx context.Context, msg *types.Message) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	header := n.head
	return n.host.Call(&header, n.prepare(msg))
}

// GiveCupcakeTo submits giveCupcakeTo(account) on behalf of from.
func (n *Node) GiveCupcakeTo(ctx context.Context, from, account common.Address) (bool, *types.Receipt, error) {
	data, err := vending.PackGiveCupcakeTo(account)
	if err != nil {
		return false, nil, err
	}
	receipt, err := n.Submit(ctx, &types.Message{From: from, To: n.contract, Data: data})
	if err != nil {
		return false, nil, err
	}
	if !receipt.Succeeded() {
		return false, receipt, fmt.Errorf("%w: %s", ErrTransactionFailed, receipt.Error)
	}
	granted, err := vending.UnpackGranted(receipt.ReturnData)
	if err != nil {
		return false, receipt, err
	}
	return granted, receipt, nil
}

// CupcakeBalanceFor queries getCupcakeBalanceFor(account).
func (n *Node) CupcakeBalanceFor(ctx context.Context, account common.Address) (*uint256.Int, error) {
	data, err := vending.PackGetCupcakeBalanceFor(account)
	if err != nil {
		return nil, err
	}
	ret, err := n.Call(ctx, &types.Message{To: n.contract, Data: data})
	if err != nil {
		return nil, err
	}
	return vending.UnpackBalance(ret)
}
