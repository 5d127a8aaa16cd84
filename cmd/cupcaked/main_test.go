package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cupcakechain/config"
	"cupcakechain/rpc"
	"cupcakechain/storage"
)

func TestRunServesAndShutsDown(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := config.Default()
	cfg.StorageBackend = storage.BackendBolt
	cfg.DataDir = t.TempDir()
	cfg.RPCAddress = "127.0.0.1:0"
	cfg.IndexerDSN = "file:" + filepath.Join(t.TempDir(), "grants.db")
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, "test", logger, ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not become ready")
	}

	client, err := rpc.NewClient("http://"+addr, nil)
	require.NoError(t, err)
	account := common.HexToAddress("0xCDC41bff86a62716f050622325CC17a317f99404")
	grant, err := client.Give(context.Background(), common.Address{}, account)
	require.NoError(t, err)
	require.True(t, grant.Granted)
	balance, err := client.Balance(context.Background(), account)
	require.NoError(t, err)
	require.Equal(t, "1", balance.Balance)
	history, err := client.History(context.Background(), account, 10)
	require.NoError(t, err)
	require.Len(t, history.Grants, 1)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("node did not shut down")
	}
}
