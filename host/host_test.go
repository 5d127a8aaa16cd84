package host

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cupcakechain/core/types"
	"cupcakechain/storage"
)

var counterAddr = common.HexToAddress("0xc0")

// counter increments slot 1 and fails when the calldata says so.
func counter(ctx Context, input []byte) ([]byte, error) {
	current, err := ctx.GetState(slot1)
	if err != nil {
		return nil, err
	}
	next := common.BigToHash(current.Big().Add(current.Big(), common.Big1))
	if err := ctx.SetState(slot1, next); err != nil {
		return nil, err
	}
	ctx.Emit(&types.Event{Type: "counter.incremented"})
	ctx.Console("incremented")
	switch string(input) {
	case "fail":
		return nil, errors.New("asked to fail")
	case "panic":
		panic("boom")
	}
	return next.Bytes(), nil
}

func newCounterHost(t *testing.T) (*Host, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	h := New(db, nil)
	require.NoError(t, h.Register(counterAddr, ContractFunc(counter)))
	return h, db
}

func testMsg(input string) *types.Message {
	return &types.Message{To: counterAddr, Data: []byte(input), GasLimit: 100_000}
}

var testHeader = &types.BlockHeader{Height: 1, Timestamp: 42}

func TestApplyCommitsOnSuccess(t *testing.T) {
	h, _ := newCounterHost(t)
	receipt := h.Apply(testHeader, testMsg("ok"))
	require.True(t, receipt.Succeeded(), receipt.Error)
	require.Equal(t, uint64(42), receipt.Timestamp)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, []string{"incremented"}, receipt.Console)
	require.Greater(t, receipt.GasUsed, IntrinsicGas([]byte("ok")))
	require.Equal(t, 1, h.State().Dirty())
}

func TestApplyRollsBackOnError(t *testing.T) {
	h, _ := newCounterHost(t)
	require.True(t, h.Apply(testHeader, testMsg("ok")).Succeeded())

	for _, input := range []string{"fail", "panic"} {
		receipt := h.Apply(testHeader, testMsg(input))
		require.False(t, receipt.Succeeded())
		require.Empty(t, receipt.Events)
		require.NotEmpty(t, receipt.Console)
		require.Contains(t, receipt.Error, ErrExecutionReverted.Error())
	}

	value, err := h.State().GetState(counterAddr, slot1)
	require.NoError(t, err)
	require.Equal(t, common.BigToHash(common.Big1), value)
}

func TestApplyUnknownContract(t *testing.T) {
	h, _ := newCounterHost(t)
	receipt := h.Apply(testHeader, &types.Message{To: addrA, GasLimit: 100_000})
	require.False(t, receipt.Succeeded())
	require.Contains(t, receipt.Error, ErrNoContract.Error())
}

func TestApplyIntrinsicGasExceedsLimit(t *testing.T) {
	h, _ := newCounterHost(t)
	receipt := h.Apply(testHeader, &types.Message{To: counterAddr, GasLimit: 1000})
	require.False(t, receipt.Succeeded())
	require.Equal(t, uint64(1000), receipt.GasUsed)
	require.Contains(t, receipt.Error, ErrOutOfGas.Error())
}

func TestCallIsWriteProtected(t *testing.T) {
	h, _ := newCounterHost(t)
	_, err := h.Call(testHeader, testMsg("ok"))
	require.ErrorIs(t, err, ErrWriteProtection)
	require.Equal(t, 0, h.State().Dirty())
}

func TestRegisterTwiceFails(t *testing.T) {
	h, _ := newCounterHost(t)
	err := h.Register(counterAddr, ContractFunc(counter))
	require.ErrorIs(t, err, ErrContractExists)
	require.Error(t, h.Register(addrA, nil))
}

func TestSloadWarmsSlotWithinInvocation(t *testing.T) {
	h := New(storage.NewMemDB(), nil)
	var used []uint64
	require.NoError(t, h.Register(counterAddr, ContractFunc(func(ctx Context, _ []byte) ([]byte, error) {
		inv := ctx.(*invocation)
		for i := 0; i < 2; i++ {
			before := inv.gas.Used()
			if _, err := ctx.GetState(slot1); err != nil {
				return nil, err
			}
			used = append(used, inv.gas.Used()-before)
		}
		return nil, nil
	})))
	require.True(t, h.Apply(testHeader, testMsg("")).Succeeded())
	require.Equal(t, []uint64{2100, 100}, used)
}
