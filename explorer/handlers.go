package explorer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// blockSummary is the hashes-only block rendering.
func blockSummary(block *types.Block) json.RawMessage {
	enc, err := block.MarshalJSONWith(false)
	if err != nil {
		return nil
	}
	return enc
}

// ------------------------------------------------------------
// 1. /explorer/blocks/latest?limit=n
// ------------------------------------------------------------
func (api *ExplorerAPI) handleLatestBlocks(w http.ResponseWriter, r *http.Request) {
	limit := defaultLatestBlocks
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxLatestBlocks)
	}

	head := api.Chain.CurrentBlock().Number()
	out := make([]json.RawMessage, 0, limit)
	for i := uint64(0); i < uint64(limit) && i <= head; i++ {
		if block := api.Chain.GetBlockByNumber(head - i); block != nil {
			out = append(out, blockSummary(block))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ------------------------------------------------------------
// 2. /explorer/blocks/{number}
// ------------------------------------------------------------
func (api *ExplorerAPI) handleBlockByNumber(w http.ResponseWriter, r *http.Request) {
	number, err := parseNumber(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block number")
		return
	}

	block := api.Chain.GetBlockByNumber(number)
	if block == nil {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

// parseNumber accepts decimal or 0x-prefixed hex.
func parseNumber(s string) (uint64, error) {
	if len(s) > 2 && s[:2] == "0x" {
		return hexutil.DecodeUint64(s)
	}
	return strconv.ParseUint(s, 10, 64)
}

// ------------------------------------------------------------
// 3. /explorer/tx/{hash}
// ------------------------------------------------------------
func (api *ExplorerAPI) handleTransaction(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "hash")
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		writeError(w, http.StatusBadRequest, "invalid tx hash")
		return
	}
	txHash := common.BytesToHash(b)

	if tx, lookup := api.Chain.GetTransaction(txHash); tx != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "sealed",
			"transaction": tx,
			"blockHash":   lookup.BlockHash,
			"blockNumber": lookup.BlockNumber,
			"index":       lookup.Index,
			"receipt":     api.Chain.GetReceipt(txHash),
		})
		return
	}

	if api.Pending != nil {
		if tx := api.Pending.Get(txHash); tx != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"status":      "pending",
				"transaction": tx,
			})
			return
		}
	}

	writeError(w, http.StatusNotFound, "tx not found")
}

// ------------------------------------------------------------
// 4. /explorer/address/{address}
// ------------------------------------------------------------
type addressTx struct {
	Hash        common.Hash     `json:"hash"`
	BlockNumber uint64          `json:"blockNumber"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Value       string          `json:"value"`
}

func (api *ExplorerAPI) handleAddress(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	addr := common.HexToAddress(raw)

	// newest first, over the last addressScanDepth blocks
	head := api.Chain.CurrentBlock().Number()
	txs := []addressTx{}
	for i := uint64(0); i < addressScanDepth && i <= head; i++ {
		block := api.Chain.GetBlockByNumber(head - i)
		if block == nil {
			continue
		}
		for _, tx := range block.Transactions {
			to := tx.To()
			if tx.From() != addr && (to == nil || *to != addr) {
				continue
			}
			txs = append(txs, addressTx{
				Hash:        tx.Hash(),
				BlockNumber: block.Number(),
				From:        tx.From(),
				To:          to,
				Value:       tx.Value().String(),
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":      addr,
		"balance":      api.Chain.Balance(addr).String(),
		"nonce":        api.Chain.Nonce(addr),
		"codeSize":     len(api.Chain.Code(addr)),
		"transactions": txs,
	})
}

// ------------------------------------------------------------
// 5. /explorer/stream/blocks  (SSE)
// ------------------------------------------------------------
func (api *ExplorerAPI) handleStreamBlocks(w http.ResponseWriter, r *http.Request) {
	ch, unsub := api.Events.SubscribeBlocks()
	defer unsub()

	flusher, ok := startStream(w)
	if !ok {
		return
	}
	ctx := r.Context()

	for {
		select {
		case block, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", blockSummary(block))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// ------------------------------------------------------------
// 6. /explorer/stream/txs  (SSE)
// ------------------------------------------------------------
func (api *ExplorerAPI) handleStreamTxs(w http.ResponseWriter, r *http.Request) {
	ch, unsub := api.Events.SubscribeTxs()
	defer unsub()

	flusher, ok := startStream(w)
	if !ok {
		return
	}
	ctx := r.Context()

	for {
		select {
		case tx, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(tx)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}
