package host

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cupcakechain/storage"
)

var (
	addrA = common.HexToAddress("0xa")
	addrB = common.HexToAddress("0xb")
	slot1 = common.HexToHash("0x1")
	word1 = common.BigToHash(common.Big1)
)

func TestStateReadsZeroForAbsentSlots(t *testing.T) {
	state := NewStateDB(storage.NewMemDB())
	got, err := state.GetState(addrA, slot1)
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, got)
}

func TestStateRevertToSnapshot(t *testing.T) {
	state := NewStateDB(storage.NewMemDB())
	state.SetState(addrA, slot1, word1)
	snap := state.Snapshot()
	state.SetState(addrA, slot1, common.HexToHash("0x2"))
	state.SetState(addrB, slot1, common.HexToHash("0x3"))

	state.RevertToSnapshot(snap)
	got, err := state.GetState(addrA, slot1)
	require.NoError(t, err)
	require.Equal(t, word1, got)
	got, err = state.GetState(addrB, slot1)
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, got)
	require.Equal(t, 1, state.Dirty())

	state.RevertToSnapshot(0)
	require.Equal(t, 0, state.Dirty())
}

func TestStateStageWritesAndDeletesZero(t *testing.T) {
	db := storage.NewMemDB()
	state := NewStateDB(db)
	state.SetState(addrA, slot1, word1)
	batch := db.NewBatch()
	state.Stage(batch)
	require.NoError(t, batch.Write())
	require.Equal(t, 0, state.Dirty())

	committed, err := state.CommittedState(addrA, slot1)
	require.NoError(t, err)
	require.Equal(t, word1, committed)

	state.SetState(addrA, slot1, common.Hash{})
	batch = db.NewBatch()
	state.Stage(batch)
	require.NoError(t, batch.Write())
	require.Empty(t, db.Keys())
}

func TestStateSlotsAreScopedByContract(t *testing.T) {
	require.NotEqual(t, slotKey(addrA, slot1), slotKey(addrB, slot1))
}

func TestGasMeter(t *testing.T) {
	meter := NewGasMeter(100)
	require.NoError(t, meter.Consume(60))
	require.Equal(t, uint64(40), meter.Remaining())
	require.ErrorIs(t, meter.Consume(41), ErrOutOfGas)
	require.Equal(t, uint64(100), meter.Used())
}

func TestIntrinsicGasChargesCalldata(t *testing.T) {
	require.Equal(t, uint64(21_000), IntrinsicGas(nil))
	require.Equal(t, uint64(21_000+4+16), IntrinsicGas([]byte{0x00, 0x01}))
}
