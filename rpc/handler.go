package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/Siasom1/gorrillazz-devnet/log"
	"github.com/Siasom1/gorrillazz-devnet/metrics"
)

// maxBodySize bounds a single HTTP request body, batches included.
const maxBodySize = 5 * 1024 * 1024

// MethodHandler handles one JSON-RPC method. params is the raw positional
// parameter array and may be empty.
type MethodHandler func(ctx context.Context, params json.RawMessage) (interface{}, *Error)

// Handler processes JSON-RPC 2.0 requests over HTTP.
type Handler struct {
	methods map[string]MethodHandler
	mu      sync.RWMutex
	logger  *log.Logger
}

func NewHandler(logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Handler{
		methods: make(map[string]MethodHandler),
		logger:  logger,
	}
}

func (h *Handler) RegisterMethod(name string, handler MethodHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.methods[name] = handler
}

// RegisterMethods registers every entry of methods.
func (h *Handler) RegisterMethods(methods map[string]MethodHandler) {
	for name, fn := range methods {
		h.RegisterMethod(name, fn)
	}
}

// RegisteredMethods returns the registered method names, sorted.
func (h *Handler) RegisteredMethods() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	methods := make([]string, 0, len(h.methods))
	for name := range h.methods {
		methods = append(methods, name)
	}
	sort.Strings(methods)
	return methods
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		h.writeResponse(w, http.StatusMethodNotAllowed, errorResponse(nil, ErrInvalidRequest("only POST method is allowed")))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeResponse(w, http.StatusRequestEntityTooLarge, errorResponse(nil, ErrInvalidRequest("request too large")))
			return
		}
		h.logger.Warn("Failed to read request body", "error", err)
		h.writeResponse(w, http.StatusBadRequest, errorResponse(nil, ErrInvalidRequest("failed to read request body")))
		return
	}
	defer r.Body.Close()

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		h.handleBatch(w, r.Context(), body)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeResponse(w, http.StatusOK, errorResponse(nil, ErrParseError("invalid JSON")))
		return
	}
	resp := h.Call(r.Context(), &req)
	if !answers(&req, resp) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeResponse(w, http.StatusOK, resp)
}

func (h *Handler) handleBatch(w http.ResponseWriter, ctx context.Context, body []byte) {
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		h.writeResponse(w, http.StatusOK, errorResponse(nil, ErrParseError("invalid JSON")))
		return
	}
	if len(batch) == 0 {
		h.writeResponse(w, http.StatusOK, errorResponse(nil, ErrInvalidRequest("batch request cannot be empty")))
		return
	}

	responses := make([]Response, 0, len(batch))
	for _, raw := range batch {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			responses = append(responses, errorResponse(nil, ErrInvalidRequest("invalid request object")))
			continue
		}
		if resp := h.Call(ctx, &req); answers(&req, resp) {
			responses = append(responses, resp)
		}
	}
	// a batch of notifications only
	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeResponse(w, http.StatusOK, responses)
}

// Call executes one request. It is shared by the HTTP and websocket
// transports.
func (h *Handler) Call(ctx context.Context, req *Request) Response {
	if req.JSONRPC != jsonrpcVersion {
		return errorResponse(req.ID, ErrInvalidRequest("jsonrpc must be '2.0'"))
	}
	if req.Method == "" {
		return errorResponse(req.ID, ErrInvalidRequest("missing method"))
	}

	h.mu.RLock()
	handler, exists := h.methods[req.Method]
	h.mu.RUnlock()

	if !exists {
		metrics.RPCCall("unknown", true)
		h.logger.Debug("Method not found", "method", req.Method)
		return errorResponse(req.ID, ErrMethodNotFound(req.Method))
	}

	result, rpcErr := handler(ctx, req.Params)
	metrics.RPCCall(req.Method, rpcErr != nil)
	if rpcErr != nil {
		h.logger.Debug("RPC call failed", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		return errorResponse(req.ID, rpcErr)
	}
	return Response{JSONRPC: jsonrpcVersion, Result: result, ID: req.ID}
}

func (h *Handler) writeResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func errorResponse(id interface{}, err *Error) Response {
	return Response{JSONRPC: jsonrpcVersion, Error: err, ID: id}
}
