package host

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"cupcakechain/storage"
)

var slotPrefix = []byte("s")

func slotKey(addr common.Address, slot common.Hash) []byte {
	buf := make([]byte, 0, len(slotPrefix)+common.AddressLength+common.HashLength)
	buf = append(buf, slotPrefix...)
	buf = append(buf, addr.Bytes()...)
	buf = append(buf, slot.Bytes()...)
	return buf
}

type journalEntry struct {
	key     string
	prev    common.Hash
	hadPrev bool
}

// StateDB is the world state contracts read and write through. Writes are
// buffered until Stage; a journal allows any suffix of them to be undone.
//
// StateDB is not safe for concurrent use.
type StateDB struct {
	db      storage.Database
	dirty   map[string]common.Hash
	journal []journalEntry
}

// NewStateDB creates a state view backed by db.
func NewStateDB(db storage.Database) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string]common.Hash),
	}
}

// GetState returns the current value of slot in the storage of addr. Absent
// slots read as the zero word.
func (s *StateDB) GetState(addr common.Address, slot common.Hash) (common.Hash, error) {
	key := slotKey(addr, slot)
	if value, ok := s.dirty[string(key)]; ok {
		return value, nil
	}
	return s.committed(key)
}

// CommittedState returns the value of slot as of the last Stage, ignoring
// pending writes.
func (s *StateDB) CommittedState(addr common.Address, slot common.Hash) (common.Hash, error) {
	return s.committed(slotKey(addr, slot))
}

func (s *StateDB) committed(key []byte) (common.Hash, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return common.Hash{}, nil
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("host: read slot: %w", err)
	}
	return common.BytesToHash(raw), nil
}

// SetState buffers a write of value into slot.
func (s *StateDB) SetState(addr common.Address, slot common.Hash, value common.Hash) {
	key := string(slotKey(addr, slot))
	prev, had := s.dirty[key]
	s.journal = append(s.journal, journalEntry{key: key, prev: prev, hadPrev: had})
	s.dirty[key] = value
}

// Snapshot returns an identifier for the current journal position.
func (s *StateDB) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (s *StateDB) RevertToSnapshot(id int) {
	if id < 0 || id > len(s.journal) {
		panic(fmt.Sprintf("host: invalid snapshot %d (journal length %d)", id, len(s.journal)))
	}
	for i := len(s.journal) - 1; i >= id; i-- {
		entry := s.journal[i]
		if entry.hadPrev {
			s.dirty[entry.key] = entry.prev
		} else {
			delete(s.dirty, entry.key)
		}
	}
	s.journal = s.journal[:id]
}

// Dirty returns the number of slots with pending writes.
func (s *StateDB) Dirty() int {
	return len(s.dirty)
}

// Stage copies every pending write into batch and clears the buffer. Zero
// words are staged as deletions, so writing zero is indistinguishable from
// never having written.
func (s *StateDB) Stage(batch storage.Batch) {
	for key, value := range s.dirty {
		if value == (common.Hash{}) {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), value.Bytes())
	}
	s.Discard()
}

// Discard drops every pending write.
func (s *StateDB) Discard() {
	s.dirty = make(map[string]common.Hash)
	s.journal = nil
}
