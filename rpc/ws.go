package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"cupcakechain/core"
)

const wsWriteTimeout = 10 * time.Second

// streamGrants upgrades to a websocket and pushes every grant committed after
// the optional cursor query parameter.
func (s *Server) streamGrants(w http.ResponseWriter, r *http.Request) {
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "requestId", RequestID(r.Context()), "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// The client never sends; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	if err := s.pushGrants(ctx, conn, cursor); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) pushGrants(ctx context.Context, conn *websocket.Conn, cursor string) error {
	updates, cancel, backlog := s.node.SubscribeGrants(ctx, cursor)
	defer cancel()

	for _, update := range backlog {
		if err := writeGrantUpdate(ctx, conn, update); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeGrantUpdate(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func writeGrantUpdate(ctx context.Context, conn *websocket.Conn, update core.GrantUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
