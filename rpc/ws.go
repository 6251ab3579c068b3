package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/events"
	"github.com/Siasom1/gorrillazz-devnet/log"
)

const (
	wsWriteWait = 10 * time.Second

	subNewHeads               = "newHeads"
	subNewPendingTransactions = "newPendingTransactions"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Feed is the event source behind eth_subscribe.
type Feed interface {
	SubscribeBlocks() (<-chan *types.Block, events.Unsubscribe)
	SubscribeTxs() (<-chan *types.Transaction, events.Unsubscribe)
}

type subscriptionResult struct {
	Subscription string      `json:"subscription"`
	Result       interface{} `json:"result"`
}

type subscriptionNotification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  subscriptionResult `json:"params"`
}

// WebSocketHub serves JSON-RPC over websocket connections and tracks them
// so they can be closed on shutdown.
type WebSocketHub struct {
	handler *Handler
	feed    Feed
	logger  *log.Logger

	mu      sync.Mutex
	clients map[*wsConn]struct{}
	closed  bool
}

func NewWebSocketHub(handler *Handler, feed Feed, logger *log.Logger) *WebSocketHub {
	return &WebSocketHub{
		handler: handler,
		feed:    feed,
		logger:  logger,
		clients: make(map[*wsConn]struct{}),
	}
}

func (h *WebSocketHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		conn:    conn,
		handler: h.handler,
		feed:    h.feed,
		logger:  h.logger,
		subs:    make(map[string]events.Unsubscribe),
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	defer h.unregister(c)

	c.serve(r.Context())
}

// Clients is the number of open connections.
func (h *WebSocketHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close closes every connection and refuses new ones.
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsConn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (h *WebSocketHub) register(c *wsConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *WebSocketHub) unregister(c *wsConn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// --------------------------------------------------------
// Connection
// --------------------------------------------------------

type wsConn struct {
	conn    *websocket.Conn
	handler *Handler
	feed    Feed
	logger  *log.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]events.Unsubscribe
	wg   sync.WaitGroup
}

func (c *wsConn) serve(ctx context.Context) {
	defer c.close()
	c.conn.SetReadLimit(maxBodySize)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg = bytes.TrimSpace(msg)
		if len(msg) > 0 && msg[0] == '[' {
			c.serveBatch(ctx, msg)
			continue
		}

		var req Request
		if err := json.Unmarshal(msg, &req); err != nil {
			c.write(errorResponse(nil, ErrParseError("invalid JSON")))
			continue
		}
		resp, start := c.dispatch(ctx, &req)
		if answers(&req, resp) && c.write(resp) != nil {
			return
		}
		if start != nil {
			start()
		}
	}
}

func (c *wsConn) serveBatch(ctx context.Context, msg []byte) {
	var batch []json.RawMessage
	if err := json.Unmarshal(msg, &batch); err != nil {
		c.write(errorResponse(nil, ErrParseError("invalid JSON")))
		return
	}
	if len(batch) == 0 {
		c.write(errorResponse(nil, ErrInvalidRequest("batch request cannot be empty")))
		return
	}

	responses := make([]Response, 0, len(batch))
	var starts []func()
	for _, raw := range batch {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			responses = append(responses, errorResponse(nil, ErrInvalidRequest("invalid request object")))
			continue
		}
		resp, start := c.dispatch(ctx, &req)
		if answers(&req, resp) {
			responses = append(responses, resp)
		}
		if start != nil {
			starts = append(starts, start)
		}
	}
	if len(responses) > 0 && c.write(responses) != nil {
		return
	}
	for _, start := range starts {
		start()
	}
}

// dispatch answers req. For a new subscription it also returns the func
// that starts delivery, to be called once the answer has been written.
func (c *wsConn) dispatch(ctx context.Context, req *Request) (Response, func()) {
	switch req.Method {
	case "eth_subscribe":
		return c.subscribe(req)
	case "eth_unsubscribe":
		return c.unsubscribe(req), nil
	}
	return c.handler.Call(ctx, req), nil
}

func (c *wsConn) subscribe(req *Request) (Response, func()) {
	var (
		kind string
		opts json.RawMessage
	)
	if err := parseParams(req.Params, 1, &kind, &opts); err != nil {
		return errorResponse(req.ID, err), nil
	}

	id := uuid.New()
	subID := hexutil.Encode(id[:])

	var start func()
	switch kind {
	case subNewHeads:
		blocks, unsub := c.feed.SubscribeBlocks()
		c.track(subID, unsub)
		start = func() {
			c.wg.Add(1)
			go c.forward(func() bool {
				block, ok := <-blocks
				if !ok {
					return false
				}
				enc, err := block.MarshalJSONWith(false)
				if err != nil {
					return true
				}
				return c.notify(subID, json.RawMessage(enc)) == nil
			})
		}

	case subNewPendingTransactions:
		txs, unsub := c.feed.SubscribeTxs()
		c.track(subID, unsub)
		start = func() {
			c.wg.Add(1)
			go c.forward(func() bool {
				tx, ok := <-txs
				if !ok {
					return false
				}
				return c.notify(subID, tx.Hash()) == nil
			})
		}

	default:
		return errorResponse(req.ID, ErrInvalidParams("unsupported subscription type "+kind)), nil
	}

	c.logger.Debug("New subscription", "id", subID, "kind", kind)
	return Response{JSONRPC: jsonrpcVersion, Result: subID, ID: req.ID}, start
}

func (c *wsConn) unsubscribe(req *Request) Response {
	var subID string
	if err := parseParams(req.Params, 1, &subID); err != nil {
		return errorResponse(req.ID, err)
	}

	c.mu.Lock()
	unsub, ok := c.subs[subID]
	delete(c.subs, subID)
	c.mu.Unlock()

	if ok {
		unsub()
	}
	return Response{JSONRPC: jsonrpcVersion, Result: ok, ID: req.ID}
}

func (c *wsConn) track(subID string, unsub events.Unsubscribe) {
	c.mu.Lock()
	c.subs[subID] = unsub
	c.mu.Unlock()
}

// forward runs next until it reports the subscription or connection done.
func (c *wsConn) forward(next func() bool) {
	defer c.wg.Done()
	for next() {
	}
}

func (c *wsConn) notify(subID string, result interface{}) error {
	return c.write(subscriptionNotification{
		JSONRPC: jsonrpcVersion,
		Method:  "eth_subscription",
		Params:  subscriptionResult{Subscription: subID, Result: result},
	})
}

func (c *wsConn) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Debug("Websocket write failed", "error", err)
		return err
	}
	return nil
}

func (c *wsConn) close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]events.Unsubscribe)
	c.mu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
	c.conn.Close()
	c.wg.Wait()
}
