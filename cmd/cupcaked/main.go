package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cupcakechain/config"
	"cupcakechain/core"
	"cupcakechain/indexer"
	"cupcakechain/observability"
	"cupcakechain/observability/logging"
	telemetry "cupcakechain/observability/otel"
	"cupcakechain/rpc"
	"cupcakechain/storage"
)

const serviceName = "cupcaked"

func main() {
	cfgPath := flag.String("config", "./config.toml", "path to the node configuration (TOML or YAML)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	env := strings.TrimSpace(os.Getenv("CUPCAKE_ENV"))
	if env == "" {
		env = cfg.Env
	}
	logger := logging.SetupWithOptions(serviceName, env, logging.Options{
		Level: logging.ParseLevel(cfg.LogLevel),
		File:  cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, logger, nil); err != nil {
		logger.Error("node stopped", "error", err)
		os.Exit(1)
	}
}

// run serves the node until ctx is cancelled. When ready is non-nil it
// receives the bound listener address once the server accepts connections.
func run(ctx context.Context, cfg *config.Config, env string, logger *slog.Logger, ready chan<- string) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	var idx *indexer.Indexer
	if dsn := strings.TrimSpace(cfg.IndexerDSN); dsn != "" {
		idx, err = indexer.Open(dsn)
		if err != nil {
			return err
		}
		defer func() { _ = idx.Close() }()
	}

	opts := core.Options{
		Contract:   cfg.Contract(),
		TxGasLimit: cfg.TxGasLimit,
		Logger:     logger,
		Metrics:    observability.Vending(),
	}
	rpcOpts := rpc.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}
	if idx != nil {
		opts.Indexer = idx
		rpcOpts.History = idx
	}
	node, err := core.NewNode(db, opts)
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	head := node.Head()
	logger.Info("node ready",
		"backend", cfg.StorageBackend,
		"contract", node.Contract().Hex(),
		"height", head.Height,
		"indexer", idx != nil)

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.RPCAddress, err)
	}
	server := &http.Server{
		Handler:           otelhttp.NewHandler(rpc.NewServer(node, rpcOpts), serviceName),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	logger.Info("rpc listening", "addr", listener.Addr().String())
	if ready != nil {
		ready <- listener.Addr().String()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
