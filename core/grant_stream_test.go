package core

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cupcakechain/native/vending"
	"cupcakechain/storage"
)

func TestSubscribeGrantsDeliversCommittedGrants(t *testing.T) {
	node, clock := newTestNode(t, storage.NewMemDB(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, stop, backlog := node.SubscribeGrants(ctx, "")
	defer stop()
	require.Empty(t, backlog)

	clock.set(10)
	require.True(t, give(t, node, user))
	require.False(t, give(t, node, user))

	select {
	case update := <-updates:
		require.Equal(t, uint64(1), update.Sequence)
		require.Equal(t, "1", update.Cursor)
		require.Equal(t, strings.ToLower(user.Hex()), update.Account)
		require.Equal(t, "1", update.Balance)
		require.Equal(t, uint64(10), update.GrantedAt)
		require.Equal(t, uint64(1), update.Height)
	case <-time.After(time.Second):
		t.Fatal("no grant delivered")
	}
	select {
	case update := <-updates:
		t.Fatalf("refusal must not publish a grant: %+v", update)
	default:
	}
}

func TestSubscribeGrantsReplaysBacklogAfterCursor(t *testing.T) {
	node, clock := newTestNode(t, storage.NewMemDB(), Options{})
	clock.set(10)
	for i := 0; i < 3; i++ {
		require.True(t, give(t, node, user))
		clock.advance(vending.Cooldown)
	}

	_, stop, backlog := node.SubscribeGrants(context.Background(), "1")
	defer stop()
	require.Len(t, backlog, 2)
	require.Equal(t, "2", backlog[0].Balance)
	require.Equal(t, "3", backlog[1].Balance)

	_, stopAll, all := node.SubscribeGrants(context.Background(), "not-a-cursor")
	defer stopAll()
	require.Len(t, all, 3)
}

func TestSubscribeGrantsClosesOnCancel(t *testing.T) {
	node, _ := newTestNode(t, storage.NewMemDB(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	updates, stop, _ := node.SubscribeGrants(ctx, "")
	cancel()
	select {
	case _, ok := <-updates:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	stop()
}

func TestSubscribeGrantsStopReleasesWatcher(t *testing.T) {
	node, _ := newTestNode(t, storage.NewMemDB(), Options{})
	baseline := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		updates, stop, _ := node.SubscribeGrants(context.Background(), "")
		stop()
		_, open := <-updates
		require.False(t, open)
	}
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGrantHistoryIsBounded(t *testing.T) {
	var stream grantStream
	for i := 0; i < grantHistoryLimit+10; i++ {
		stream.publish(GrantUpdate{Balance: "1"})
	}
	require.Len(t, stream.history, grantHistoryLimit)
	require.Equal(t, uint64(11), stream.history[0].Sequence)
}
