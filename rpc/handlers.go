package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"cupcakechain/core"
	"cupcakechain/core/types"
	"cupcakechain/host"
)

var (
	errRateLimited      = errors.New("rate limit exceeded")
	errNotFound         = errors.New("not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errHistoryDisabled  = errors.New("grant history is not enabled on this node")
	errBodyTooLarge     = fmt.Errorf("request body exceeds %d bytes", maxRequestBytes)
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	head := s.node.Head()
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Height: head.Height, Head: head.Hash()})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	balance, err := s.node.CupcakeBalanceFor(r.Context(), account)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Address: account, Balance: balance.Dec()})
}

func (s *Server) give(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req GiveRequest
	if status, err := decodeBody(w, r, &req, true); err != nil {
		writeJSONError(w, status, err)
		return
	}
	var from common.Address
	if strings.TrimSpace(req.From) != "" {
		if from, err = parseAddress(req.From); err != nil {
			writeBadRequest(w, fmt.Errorf("from: %w", err))
			return
		}
	}
	granted, receipt, err := s.node.GiveCupcakeTo(r.Context(), from, account)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GrantResponse{
		Granted:     granted,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockHeight,
		Timestamp:   receipt.Timestamp,
		GasUsed:     receipt.GasUsed,
	})
}

func (s *Server) grants(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, errHistoryDisabled)
		return
	}
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
	}
	grants, err := s.history.History(r.Context(), account, limit)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Address: account, Grants: grants})
}

// exportGrants streams the grant log as parquet. The body is buffered so a
// failed export still yields a JSON error.
func (s *Server) exportGrants(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, errHistoryDisabled)
		return
	}
	var account *common.Address
	if raw := strings.TrimSpace(r.URL.Query().Get("account")); raw != "" {
		parsed, err := parseAddress(raw)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		account = &parsed
	}
	var buf bytes.Buffer
	rows, err := s.history.ExportParquet(r.Context(), &buf, account)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="grants.parquet"`)
	w.Header().Set("X-Row-Count", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) call(w http.ResponseWriter, r *http.Request) {
	msg, status, err := decodeMessage(w, r)
	if err != nil {
		writeJSONError(w, status, err)
		return
	}
	ret, err := s.node.Call(r.Context(), msg)
	if errors.Is(err, host.ErrExecutionReverted) {
		writeBadRequest(w, err)
		return
	}
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CallResponse{Result: ret})
}

func (s *Server) transact(w http.ResponseWriter, r *http.Request) {
	msg, status, err := decodeMessage(w, r)
	if err != nil {
		writeJSONError(w, status, err)
		return
	}
	receipt, err := s.node.Submit(r.Context(), msg)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptResponse(receipt))
}

func decodeMessage(w http.ResponseWriter, r *http.Request) (*types.Message, int, error) {
	var req MessageRequest
	if status, err := decodeBody(w, r, &req, false); err != nil {
		return nil, status, err
	}
	data, err := hexutil.Decode(strings.TrimSpace(req.Data))
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("data: %w", err)
	}
	msg := &types.Message{Data: data, GasLimit: req.Gas}
	if strings.TrimSpace(req.From) != "" {
		if msg.From, err = parseAddress(req.From); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("from: %w", err)
		}
	}
	return msg, http.StatusOK, nil
}

// decodeBody reads a JSON object into dst. When optional is set an empty
// body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) (int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return http.StatusRequestEntityTooLarge, errBodyTooLarge
		}
		return http.StatusBadRequest, fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if optional {
			return http.StatusOK, nil
		}
		return http.StatusBadRequest, errors.New("request body is empty")
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return http.StatusBadRequest, fmt.Errorf("decode request: %w", err)
	}
	return http.StatusOK, nil
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, core.ErrTransactionFailed) {
		s.logger.Warn("transaction failed", "path", r.URL.Path, "requestId", RequestID(r.Context()), "error", err)
	} else {
		s.logger.Error("request failed", "path", r.URL.Path, "requestId", RequestID(r.Context()), "error", err)
	}
	writeJSONError(w, status, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := ""
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: message})
}
