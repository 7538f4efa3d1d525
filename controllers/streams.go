package controllers

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"refund-review-api/services"
)

type StreamController struct {
	fanout         *services.NotificationFanout
	transactions   *services.TransactionStream
	sessions       *services.SessionRegistry
	originPatterns []string
}

func NewStreamController(fanout *services.NotificationFanout, transactions *services.TransactionStream, sessions *services.SessionRegistry, originPatterns []string) *StreamController {
	return &StreamController{
		fanout:         fanout,
		transactions:   transactions,
		sessions:       sessions,
		originPatterns: originPatterns,
	}
}

type streamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// GET /api/v1/notifications/stream
func (sc *StreamController) Notifications(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	sub, err := sc.fanout.Subscribe(c.Request.Context(), principal.ID, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Cancel()
	serveStream(c, sc.originPatterns, "notifications", sub)
}

// GET /api/v1/transactions/stream
func (sc *StreamController) Transactions(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	filter, ok := transactionFilter(c)
	if !ok {
		return
	}
	staging := sc.sessions.Session(principal.ID).Staging
	sub, err := sc.transactions.Subscribe(c.Request.Context(), principal.ID, filter, staging)
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Cancel()
	serveStream(c, sc.originPatterns, "transactions", sub)
}

// serveStream upgrades the request and relays snapshots until either side closes.
func serveStream[T any](c *gin.Context, originPatterns []string, kind string, sub *services.Subscription[T]) {
	opts := &websocket.AcceptOptions{}
	if len(originPatterns) > 0 {
		opts.OriginPatterns = originPatterns
	}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	_ = wsjson.Write(ctx, conn, streamEvent{Type: "ready"})
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case snap, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, streamEvent{Type: kind, Data: snap})
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}
