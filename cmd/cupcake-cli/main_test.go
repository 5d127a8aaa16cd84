package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"cupcakechain/core"
	"cupcakechain/indexer"
	"cupcakechain/native/vending"
	"cupcakechain/observability"
	"cupcakechain/rpc"
	"cupcakechain/storage"
)

const account = "0xCDC41bff86a62716f050622325CC17a317f99404"

func startNode(t *testing.T) string {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Contract: common.HexToAddress("0xc0ffee01"),
		Metrics:  observability.NewVendingMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	node.SetNowFunc(func() time.Time { return time.Unix(1_000, 0) })
	ts := httptest.NewServer(rpc.NewServer(node, rpc.Options{}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestGiveAndBalance(t *testing.T) {
	url := startNode(t)

	code, out, errOut := runCLI("-rpc", url, "give", account)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Cupcake granted")

	code, out, _ = runCLI("-rpc", url, "give", "-from", account, account)
	require.Equal(t, 0, code)
	require.Contains(t, out, "No cupcake")

	code, out, _ = runCLI("-rpc", url, "balance", account)
	require.Equal(t, 0, code)
	require.Contains(t, out, "has 1 cupcake(s)")
}

func TestHistoryWithoutIndexer(t *testing.T) {
	url := startNode(t)
	code, _, errOut := runCLI("-rpc", url, "history", account)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "404")
}

func TestHistoryAndExport(t *testing.T) {
	idx, err := indexer.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Contract: common.HexToAddress("0xc0ffee01"),
		Metrics:  observability.NewVendingMetrics(prometheus.NewRegistry()),
		Indexer:  idx,
	})
	require.NoError(t, err)
	node.SetNowFunc(func() time.Time { return time.Unix(1_000, 0) })
	ts := httptest.NewServer(rpc.NewServer(node, rpc.Options{History: idx}))
	defer ts.Close()

	code, _, errOut := runCLI("-rpc", ts.URL, "give", account)
	require.Equal(t, 0, code, errOut)

	code, out, errOut := runCLI("-rpc", ts.URL, "history", "-limit", "5", account)
	require.Equal(t, 0, code, errOut)
	var history rpc.HistoryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history.Grants, 1)

	path := filepath.Join(t.TempDir(), "grants.parquet")
	code, out, errOut = runCLI("-rpc", ts.URL, "export", "-account", account, path)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Exported 1 grant(s)")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PAR1")))
}

func TestCalldata(t *testing.T) {
	code, out, _ := runCLI("calldata", "give", account)
	require.Equal(t, 0, code)
	want, err := vending.PackGiveCupcakeTo(common.HexToAddress(account))
	require.NoError(t, err)
	require.Equal(t, "0x"+common.Bytes2Hex(want), strings.TrimSpace(out))

	code, out, _ = runCLI("calldata", "balance", account)
	require.Equal(t, 0, code)
	require.True(t, strings.HasPrefix(strings.TrimSpace(out), "0x"))
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"bake"},
		{"balance"},
		{"balance", "not-an-address"},
		{"calldata", "burn", account},
		{"give", "-from", "nope", account},
		{"export"},
	} {
		code, _, errOut := runCLI(append([]string{"-rpc", "http://127.0.0.1:1"}, args...)...)
		require.Equal(t, 2, code, "args %v: %s", args, errOut)
		require.Contains(t, errOut, "Usage:")
	}
}
