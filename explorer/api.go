// Package explorer serves a read-only REST view of the chain plus live
// block and transaction streams.
package explorer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/Siasom1/gorrillazz-devnet/core/blockchain"
	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/events"
)

const (
	defaultLatestBlocks = 10
	maxLatestBlocks     = 100

	// addressScanDepth bounds how many recent blocks an address lookup walks.
	addressScanDepth = 1000
)

// Feed is the event source for the live streams.
type Feed interface {
	SubscribeBlocks() (<-chan *types.Block, events.Unsubscribe)
	SubscribeTxs() (<-chan *types.Transaction, events.Unsubscribe)
}

// PendingSource looks up transactions not yet sealed.
type PendingSource interface {
	Get(hash common.Hash) *types.Transaction
}

type ExplorerAPI struct {
	Chain   blockchain.Reader
	Pending PendingSource // optional
	Events  Feed
}

func NewExplorerAPI(chain blockchain.Reader, pending PendingSource, bus Feed) *ExplorerAPI {
	return &ExplorerAPI{
		Chain:   chain,
		Pending: pending,
		Events:  bus,
	}
}

// Routes returns the explorer router, meant to be mounted at /explorer.
func (api *ExplorerAPI) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/blocks/latest", api.handleLatestBlocks)
	r.Get("/blocks/{number}", api.handleBlockByNumber)
	r.Get("/tx/{hash}", api.handleTransaction)
	r.Get("/address/{address}", api.handleAddress)

	// Live streams (SSE)
	r.Get("/stream/blocks", api.handleStreamBlocks)
	r.Get("/stream/txs", api.handleStreamTxs)

	return r
}
