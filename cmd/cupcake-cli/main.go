package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/term"

	"cupcakechain/native/vending"
	"cupcakechain/rpc"
)

const defaultRPCEndpoint = "http://127.0.0.1:8545"

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cupcake-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	endpoint := fs.String("rpc", rpcEndpointFromEnv(), "node RPC endpoint")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch rest[0] {
	case "calldata":
		err = calldata(rest[1:], stdout)
	case "give", "balance", "history", "export":
		var client *rpc.Client
		client, err = rpc.NewClient(*endpoint, nil)
		if err == nil {
			err = dispatch(ctx, client, rest[0], rest[1:], stdout, stderr)
		}
	case "help":
		printUsage(stdout)
		return 0
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintln(stderr, "Error:", err)
		printUsage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, client *rpc.Client, command string, args []string, stdout, stderr io.Writer) error {
	switch command {
	case "give":
		fs := flag.NewFlagSet("give", flag.ContinueOnError)
		fs.SetOutput(stderr)
		fromFlag := fs.String("from", "", "account submitting the request")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		account, err := addressArg(fs.Args())
		if err != nil {
			return err
		}
		var from common.Address
		if *fromFlag != "" {
			if !common.IsHexAddress(*fromFlag) {
				return fmt.Errorf("%w: invalid -from address %q", errUsage, *fromFlag)
			}
			from = common.HexToAddress(*fromFlag)
		}
		grant, err := client.Give(ctx, from, account)
		if err != nil {
			return err
		}
		if grant.Granted {
			fmt.Fprintf(stdout, "Cupcake granted to %s (block %d, tx %s)\n", account.Hex(), grant.BlockNumber, grant.TxHash.Hex())
		} else {
			fmt.Fprintf(stdout, "No cupcake for %s yet: wait %d seconds between cupcakes\n", account.Hex(), vending.Cooldown)
		}
		return nil
	case "balance":
		account, err := addressArg(args)
		if err != nil {
			return err
		}
		balance, err := client.Balance(ctx, account)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s has %s cupcake(s)\n", balance.Address.Hex(), balance.Balance)
		return nil
	case "history":
		fs := flag.NewFlagSet("history", flag.ContinueOnError)
		fs.SetOutput(stderr)
		limit := fs.Int("limit", 20, "maximum number of grants to list")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		account, err := addressArg(fs.Args())
		if err != nil {
			return err
		}
		history, err := client.History(ctx, account, *limit)
		if err != nil {
			return err
		}
		encoder := json.NewEncoder(stdout)
		if isTerminal(stdout) {
			encoder.SetIndent("", "  ")
		}
		return encoder.Encode(history)
	case "export":
		fs := flag.NewFlagSet("export", flag.ContinueOnError)
		fs.SetOutput(stderr)
		accountFlag := fs.String("account", "", "only export grants to this account")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("%w: export [-account ADDRESS] <file.parquet>", errUsage)
		}
		var account *common.Address
		if *accountFlag != "" {
			parsed, err := addressArg([]string{*accountFlag})
			if err != nil {
				return err
			}
			account = &parsed
		}
		return exportGrants(ctx, client, fs.Arg(0), account, stdout)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, command)
}

func exportGrants(ctx context.Context, client *rpc.Client, path string, account *common.Address, stdout io.Writer) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	rows, err := client.ExportGrants(ctx, file, account)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	fmt.Fprintf(stdout, "Exported %d grant(s) to %s\n", rows, path)
	return nil
}

func calldata(args []string, stdout io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: calldata <give|balance> <address>", errUsage)
	}
	account, err := addressArg(args[1:])
	if err != nil {
		return err
	}
	var data []byte
	switch args[0] {
	case "give":
		data, err = vending.PackGiveCupcakeTo(account)
	case "balance":
		data, err = vending.PackGetCupcakeBalanceFor(account)
	default:
		return fmt.Errorf("%w: unknown calldata operation %q", errUsage, args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hexutil.Encode(data))
	return nil
}

func addressArg(args []string) (common.Address, error) {
	if len(args) != 1 {
		return common.Address{}, fmt.Errorf("%w: expected exactly one address", errUsage)
	}
	if !common.IsHexAddress(args[0]) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errUsage, args[0])
	}
	return common.HexToAddress(args[0]), nil
}

// isTerminal reports whether w is an interactive terminal. Piped output stays
// one JSON document per line.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func rpcEndpointFromEnv() string {
	if env := strings.TrimSpace(os.Getenv("CUPCAKE_RPC")); env != "" {
		return env
	}
	return defaultRPCEndpoint
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cupcake-cli [-rpc URL] <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  give [-from ADDRESS] <address>       Ask for a cupcake for <address>")
	fmt.Fprintln(w, "  balance <address>                    Show how many cupcakes <address> holds")
	fmt.Fprintln(w, "  history [-limit N] <address>         List recent grants to <address>")
	fmt.Fprintln(w, "  export [-account ADDRESS] <file>     Download the grant log as parquet")
	fmt.Fprintln(w, "  calldata <give|balance> <address>    Print ABI calldata for a contract call")
}
