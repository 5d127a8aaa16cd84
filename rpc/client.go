package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Client talks to a node's HTTP API.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a client for the API served at endpoint. A nil
// httpClient selects one with a 15 second timeout.
func NewClient(endpoint string, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(endpoint), "/"))
	if err != nil {
		return nil, fmt.Errorf("rpc: parse endpoint: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("rpc: endpoint %q must include scheme and host", endpoint)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{base: base, http: httpClient}, nil
}

// Balance fetches the cupcake balance of account.
func (c *Client) Balance(ctx context.Context, account common.Address) (*BalanceResponse, error) {
	var out BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/cupcakes/"+account.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Give asks the node to hand account a cupcake on behalf of from.
func (c *Client) Give(ctx context.Context, from, account common.Address) (*GrantResponse, error) {
	req := GiveRequest{}
	if from != (common.Address{}) {
		req.From = from.Hex()
	}
	var out GrantResponse
	if err := c.do(ctx, http.MethodPost, "/v1/cupcakes/"+account.Hex(), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists the most recent grants to account.
func (c *Client) History(ctx context.Context, account common.Address, limit int) (*HistoryResponse, error) {
	path := "/v1/cupcakes/" + account.Hex() + "/grants"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportGrants downloads the grant log as parquet into w. A non-nil account
// restricts the export to that account.
func (c *Client) ExportGrants(ctx context.Context, w io.Writer, account *common.Address) (int, error) {
	path := "/v1/grants/export"
	if account != nil {
		path += "?account=" + account.Hex()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+path, nil)
	if err != nil {
		return 0, fmt.Errorf("rpc: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rpc: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return 0, fmt.Errorf("rpc: download export: %w", err)
	}
	rows, _ := strconv.Atoi(resp.Header.Get("X-Row-Count"))
	return rows, nil
}

// Call runs raw calldata read-only and returns the ABI-encoded result.
func (c *Client) Call(ctx context.Context, from common.Address, data []byte) ([]byte, error) {
	var out CallResponse
	if err := c.do(ctx, http.MethodPost, "/v1/call", messageRequest(from, data), &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// SendTransaction submits raw calldata as a transaction.
func (c *Client) SendTransaction(ctx context.Context, from common.Address, data []byte) (*ReceiptResponse, error) {
	var out ReceiptResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", messageRequest(from, data), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func messageRequest(from common.Address, data []byte) MessageRequest {
	req := MessageRequest{Data: hexutil.Encode(data)}
	if from != (common.Address{}) {
		req.From = from.Hex()
	}
	return req
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rpc: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("rpc: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rpc: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	if err != nil {
		return fmt.Errorf("rpc: read response: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("rpc: decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	message := strings.TrimSpace(string(payload))
	var apiErr errorResponse
	if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
		message = apiErr.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: message}
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
