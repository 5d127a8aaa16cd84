package core

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"cupcakechain/core/types"
	"cupcakechain/native/vending"
)

const grantHistoryLimit = 1024

// GrantUpdate describes one committed cupcake grant.
type GrantUpdate struct {
	Sequence  uint64      `json:"sequence"`
	Cursor    string      `json:"cursor"`
	Account   string      `json:"account"`
	Balance   string      `json:"balance"`
	GrantedAt uint64      `json:"grantedAt"`
	TxHash    common.Hash `json:"txHash"`
	Height    uint64      `json:"height"`
}

type grantStream struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan GrantUpdate
	history []GrantUpdate
}

// publishGrants fans the grant events of committed receipts out to
// subscribers. Slow subscribers miss updates rather than block the node.
func (n *Node) publishGrants(receipts []*types.Receipt) {
	for _, receipt := range receipts {
		if !receipt.Succeeded() {
			continue
		}
		for _, ev := range receipt.Events {
			if ev == nil || ev.Type != vending.EventTypeCupcakeGranted {
				continue
			}
			grantedAt, err := strconv.ParseUint(ev.Attributes["grantedAt"], 10, 64)
			if err != nil {
				continue
			}
			n.grants.publish(GrantUpdate{
				Account:   ev.Attributes["account"],
				Balance:   ev.Attributes["balance"],
				GrantedAt: grantedAt,
				TxHash:    receipt.TxHash,
				Height:    receipt.BlockHeight,
			})
		}
	}
}

func (s *grantStream) publish(update GrantUpdate) {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan GrantUpdate)
	}
	s.seq++
	update.Sequence = s.seq
	update.Cursor = strconv.FormatUint(update.Sequence, 10)
	s.history = append(s.history, update)
	if len(s.history) > grantHistoryLimit {
		excess := len(s.history) - grantHistoryLimit
		trimmed := make([]GrantUpdate, grantHistoryLimit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	// Sends happen under mu so cancel never closes a channel mid-send.
	for _, ch := range s.subs {
		select {
		case ch <- update:
		default:
		}
	}
	s.mu.Unlock()
}

// SubscribeGrants registers a subscriber for grants committed after the
// supplied cursor. The backlog holds retained grants newer than the cursor;
// the channel carries grants committed from now on. The subscription ends
// when ctx is cancelled or cancel is called.
func (n *Node) SubscribeGrants(ctx context.Context, cursor string) (<-chan GrantUpdate, func(), []GrantUpdate) {
	updates := make(chan GrantUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	s := &n.grants
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan GrantUpdate)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	backlog := make([]GrantUpdate, 0, len(s.history))
	for _, entry := range s.history {
		if entry.Sequence > since {
			backlog = append(backlog, entry)
		}
	}
	s.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-done:
			}
		}()
	}
	return updates, cancel, backlog
}
