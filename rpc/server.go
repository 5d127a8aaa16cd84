package rpc

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cupcakechain/core"
	"cupcakechain/indexer"
)

const (
	maxRequestBytes     = 1 << 20 // 1 MiB
	defaultHistoryLimit = 20
)

// GrantHistory serves the grant log kept by the indexer.
type GrantHistory interface {
	History(ctx context.Context, account common.Address, limit int) ([]indexer.Grant, error)
	ExportParquet(ctx context.Context, w io.Writer, account *common.Address) (int, error)
}

// Options configures a Server. Zero values disable the optional pieces.
type Options struct {
	Logger *slog.Logger
	// History enables GET /v1/cupcakes/{address}/grants and
	// GET /v1/grants/export.
	History   GrantHistory
	RateLimit RateLimit
	// Metrics serves GET /metrics. Defaults to the default prometheus
	// gatherer.
	Metrics http.Handler
	// AllowedOrigins lists host patterns accepted for websocket upgrades
	// from browsers. Same-origin requests are always accepted.
	AllowedOrigins []string
	// TrustedProxies lists the IP addresses or CIDR ranges of reverse
	// proxies whose X-Real-IP and X-Forwarded-For headers identify the
	// client for rate limiting and access logs.
	TrustedProxies []string
}

// Server exposes the vending machine over HTTP.
type Server struct {
	node           *core.Node
	history        GrantHistory
	logger         *slog.Logger
	originPatterns []string
	router         chi.Router
}

// NewServer builds the router for node.
func NewServer(node *core.Node, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s := &Server{
		node:           node,
		history:        opts.History,
		logger:         logger,
		originPatterns: opts.AllowedOrigins,
	}

	trust, err := newProxyTrust(opts.TrustedProxies)
	if err != nil {
		logger.Error("ignoring trusted proxies", "error", err)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(logger, trust))
	r.Get("/healthz", s.health)
	r.Handle("/metrics", metrics)
	r.Route("/v1", func(v1 chi.Router) {
		if opts.RateLimit.Enabled() {
			v1.Use(newRateLimiter(opts.RateLimit, trust).middleware)
		}
		v1.Get("/cupcakes/{address}", s.balance)
		v1.Post("/cupcakes/{address}", s.give)
		v1.Get("/cupcakes/{address}/grants", s.grants)
		v1.Post("/call", s.call)
		v1.Post("/transactions", s.transact)
		v1.Get("/grants/stream", s.streamGrants)
		v1.Get("/grants/export", s.exportGrants)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, errNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
