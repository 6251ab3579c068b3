package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Siasom1/gorrillazz-devnet/core/blockchain"
	"github.com/Siasom1/gorrillazz-devnet/core/state"
	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/log"
	"github.com/Siasom1/gorrillazz-devnet/metrics"
)

// Chain is the writable chain. Only the builder holds one.
type Chain interface {
	CurrentBlock() *types.Block
	State() *state.StateDB
	Commit(block *types.Block, st *state.StateDB, receipts []*types.Receipt) error
}

// Pool is the builder's side of the transaction pool.
type Pool interface {
	Drain(max int) []*types.Transaction
	Restore(txs []*types.Transaction)
	Included(txs []*types.Transaction)
	Park(hash common.Hash) bool
}

// BlockFeed is notified of every sealed block.
type BlockFeed interface {
	PublishBlock(block *types.Block)
}

// Builder turns pool contents into sealed blocks. Builds are serialized.
type Builder struct {
	chain  Chain
	pool   Pool
	feed   BlockFeed
	logger *log.Logger

	maxTxs int
	now    func() time.Time

	mu sync.Mutex
}

// NewBuilder returns a builder that puts at most maxTxs txs in a block
// (0: unbounded).
func NewBuilder(chain Chain, pool Pool, feed BlockFeed, maxTxs int, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Builder{
		chain:  chain,
		pool:   pool,
		feed:   feed,
		logger: logger.With("component", "builder"),
		maxTxs: maxTxs,
		now:    time.Now,
	}
}

// Full reports whether block used every tx slot, meaning eligible txs may
// have been left behind.
func (b *Builder) Full(block *types.Block) bool {
	return b.maxTxs > 0 && len(block.Transactions) >= b.maxTxs
}

// Build seals one block on top of the current head.
//
// With nothing to include it returns (nil, nil) unless allowEmpty is set.
// If any tx fails to apply, every drained tx goes back to the pool, the
// chain is left untouched and a *BlockApplicationError is returned. The
// failing tx is parked so the next build is not stuck on it.
// ctx is only checked before draining: once started a build runs to the end.
func (b *Builder) Build(ctx context.Context, allowEmpty bool) (*types.Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchedulerShutdown, err)
	}

	start := time.Now()

	txs := b.pool.Drain(b.maxTxs)
	if len(txs) == 0 && !allowEmpty {
		return nil, nil
	}

	// ---------------------------------------------------------
	// 1. APPLY TO A WORKING COPY
	// ---------------------------------------------------------
	parent := b.chain.CurrentBlock()
	st := b.chain.State().Copy()

	results := make([]*state.Result, len(txs))
	for i, tx := range txs {
		res, err := state.ApplyTransaction(st, tx)
		if err != nil {
			b.pool.Restore(txs)
			b.pool.Park(tx.Hash())
			metrics.BuildFailures.WithLabelValues("apply").Inc()
			return nil, &BlockApplicationError{Index: i, TxHash: tx.Hash(), Err: err}
		}
		results[i] = res
	}

	// ---------------------------------------------------------
	// 2. SEAL
	// ---------------------------------------------------------
	ts := uint64(b.now().Unix())
	if ts < parent.Time() {
		ts = parent.Time()
	}
	block := types.NewBlock(&types.Header{
		ParentHash: parent.Hash(),
		Number:     parent.Number() + 1,
		Time:       ts,
		StateRoot:  st.Root(),
	}, txs)

	// ---------------------------------------------------------
	// 3. COMMIT
	// ---------------------------------------------------------
	if err := b.chain.Commit(block, st, blockchain.DeriveReceipts(block, results)); err != nil {
		b.pool.Restore(txs)
		metrics.BuildFailures.WithLabelValues("commit").Inc()
		return nil, fmt.Errorf("commit block #%d: %w", block.Number(), err)
	}
	b.pool.Included(txs)

	// ---------------------------------------------------------
	// 4. PUBLISH
	// ---------------------------------------------------------
	if b.feed != nil {
		b.feed.PublishBlock(block)
	}

	metrics.BlocksSealed.Inc()
	metrics.TxsIncluded.Add(float64(len(txs)))
	metrics.ChainHeight.Set(float64(block.Number()))
	metrics.BuildDuration.Observe(time.Since(start).Seconds())

	b.logger.Info("Sealed block", "number", block.Number(), "txs", len(txs), "hash", block.Hash().Hex())
	return block, nil
}
