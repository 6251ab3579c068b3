package txpool

import (
	"container/heap"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Siasom1/gorrillazz-devnet/core/state"
	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/log"
	"github.com/Siasom1/gorrillazz-devnet/metrics"
)

var (
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrInvalidNonce         = errors.New("nonce too low")
	ErrAlreadyKnown         = errors.New("already known")
	ErrNonceTaken           = errors.New("nonce already used by a waiting transaction")
	ErrPoolFull             = errors.New("txpool is full")
	ErrInsufficientFunds    = errors.New("sender doesn't have enough funds to send tx")
)

// Ledger is what the pool reads from the chain. blockchain.Reader satisfies it.
type Ledger interface {
	ChainID() *big.Int
	Nonce(addr common.Address) uint64
	Balance(addr common.Address) *big.Int
}

// Feed receives every admitted transaction.
type Feed interface {
	PublishTx(tx *types.Transaction)
}

// Admission is the receipt handed back for an accepted transaction.
type Admission struct {
	Hash   common.Hash
	From   common.Address
	Nonce  uint64
	Queued bool // nonce gap: not executable until earlier nonces arrive
}

// TxPool holds validated transactions per sender in nonce order.
//
// A tx is waiting (in accounts) until the builder drains it, in flight
// until the block that carries it is sealed (Included) or fails (Restore).
// A waiting tx that broke a build is parked: Drain passes over it and its
// sender's later nonces until the sender's balance covers it again.
type TxPool struct {
	cfg    Config
	chain  Ledger
	feed   Feed
	logger *log.Logger

	mu       sync.Mutex
	seq      uint64
	all      map[common.Hash]*entry
	accounts map[common.Address]txList
	inflight map[common.Address]txList

	admissions chan struct{}
}

func NewTxPool(cfg Config, chain Ledger, feed Feed, logger *log.Logger) *TxPool {
	if logger == nil {
		logger = log.NewNop()
	}
	return &TxPool{
		cfg:        cfg.sanitize(),
		chain:      chain,
		feed:       feed,
		logger:     logger.With("component", "txpool"),
		all:        make(map[common.Hash]*entry),
		accounts:   make(map[common.Address]txList),
		inflight:   make(map[common.Address]txList),
		admissions: make(chan struct{}, 1),
	}
}

// Admissions fires after one or more admissions. Bursts coalesce into a
// single pending signal.
func (p *TxPool) Admissions() <-chan struct{} {
	return p.admissions
}

// --------------------------------------------------------
// Submit
// --------------------------------------------------------

// SubmitRaw decodes a binary tx envelope and submits it.
func (p *TxPool) SubmitRaw(raw []byte) (*Admission, error) {
	tx, err := types.DecodeTransaction(raw, p.chain.ChainID())
	if err != nil {
		metrics.PoolRejected.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	return p.Submit(tx)
}

func (p *TxPool) Submit(tx *types.Transaction) (*Admission, error) {
	if err := p.validate(tx); err != nil {
		metrics.PoolRejected.WithLabelValues("malformed").Inc()
		return nil, err
	}

	from, nonce, hash := tx.From(), tx.Nonce(), tx.Hash()

	p.mu.Lock()
	adm, err := p.add(tx, from, nonce, hash)
	p.mu.Unlock()

	if err != nil {
		metrics.PoolRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	p.logger.Debug("Admitted transaction", "hash", hash.Hex(), "from", from.Hex(), "nonce", nonce, "queued", adm.Queued)

	p.signal()
	if p.feed != nil {
		p.feed.PublishTx(tx)
	}
	return adm, nil
}

func (p *TxPool) validate(tx *types.Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrMalformedTransaction)
	}
	inner := tx.Inner()
	if inner.Protected() && inner.ChainId().Cmp(p.chain.ChainID()) != 0 {
		return fmt.Errorf("%w: chain id %s, want %s", ErrMalformedTransaction, inner.ChainId(), p.chain.ChainID())
	}
	if tx.Gas() == 0 {
		return fmt.Errorf("%w: zero gas", ErrMalformedTransaction)
	}
	if p.cfg.MaxTxGas > 0 && tx.Gas() > p.cfg.MaxTxGas {
		return fmt.Errorf("%w: gas %d above cap %d", ErrMalformedTransaction, tx.Gas(), p.cfg.MaxTxGas)
	}
	if intrinsic := state.IntrinsicGas(tx.Data(), tx.IsCreation()); tx.Gas() < intrinsic {
		return fmt.Errorf("%w: gas %d below intrinsic %d", ErrMalformedTransaction, tx.Gas(), intrinsic)
	}
	if tx.Value().Sign() < 0 {
		return fmt.Errorf("%w: negative value", ErrMalformedTransaction)
	}
	return nil
}

// add runs the stateful admission checks. p.mu must be held.
func (p *TxPool) add(tx *types.Transaction, from common.Address, nonce uint64, hash common.Hash) (*Admission, error) {
	if _, ok := p.all[hash]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyKnown, hash.Hex())
	}

	ledger := p.chain.Nonce(from)
	if nonce < ledger {
		return nil, fmt.Errorf("%w: address %s, tx %d state %d", ErrInvalidNonce, from.Hex(), nonce, ledger)
	}
	if _, ok := p.accounts[from][nonce]; ok {
		return nil, fmt.Errorf("%w: address %s nonce %d", ErrNonceTaken, from.Hex(), nonce)
	}
	if _, ok := p.inflight[from][nonce]; ok {
		return nil, fmt.Errorf("%w: address %s nonce %d (in flight)", ErrNonceTaken, from.Hex(), nonce)
	}

	if len(p.all) >= p.cfg.GlobalSlots {
		return nil, fmt.Errorf("%w: %d slots in use", ErrPoolFull, len(p.all))
	}
	if n := len(p.accounts[from]) + len(p.inflight[from]); n >= p.cfg.AccountSlots {
		return nil, fmt.Errorf("%w: address %s holds %d txs", ErrPoolFull, from.Hex(), n)
	}

	// Only the tx's own cost is checked. Several txs that overdraw together
	// are caught when the block is applied.
	if balance := p.chain.Balance(from); tx.Cost().Cmp(balance) > 0 {
		return nil, fmt.Errorf("%w: address %s have %s want %s", ErrInsufficientFunds, from.Hex(), balance, tx.Cost())
	}

	queued := nonce > p.pendingNonce(from, ledger)

	p.seq++
	e := &entry{tx: tx, seq: p.seq, added: time.Now()}
	if p.accounts[from] == nil {
		p.accounts[from] = make(txList)
	}
	p.accounts[from][nonce] = e
	p.all[hash] = e
	p.updateGauges()

	return &Admission{Hash: hash, From: from, Nonce: nonce, Queued: queued}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyKnown):
		return "known"
	case errors.Is(err, ErrInvalidNonce):
		return "nonce_low"
	case errors.Is(err, ErrNonceTaken):
		return "nonce_taken"
	case errors.Is(err, ErrPoolFull):
		return "full"
	case errors.Is(err, ErrInsufficientFunds):
		return "funds"
	default:
		return "other"
	}
}

// --------------------------------------------------------
// Builder side: Drain / Restore / Included
// --------------------------------------------------------

// Drain moves up to max executable txs (max <= 0: all) into the in-flight
// set and returns them. Per sender they come in nonce order starting at the
// ledger nonce; across senders in arrival order of each sender's next tx.
// A parked tx is drained only once its sender can pay for it on top of the
// sender's txs already in the batch.
func (p *TxPool) Drain(max int) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	spent := make(map[common.Address]*big.Int)

	h := make(headHeap, 0, len(p.accounts))
	for addr, list := range p.accounts {
		next := p.skipInflight(addr, p.chain.Nonce(addr))
		if e, ok := list[next]; ok {
			h = append(h, e)
		}
	}
	heap.Init(&h)

	var out []*types.Transaction
	for h.Len() > 0 && (max <= 0 || len(out) < max) {
		e := heap.Pop(&h).(*entry)
		addr, nonce := e.tx.From(), e.tx.Nonce()

		if spent[addr] == nil {
			spent[addr] = new(big.Int)
		}
		if e.parked {
			if !p.affordable(addr, spent[addr], e.tx) {
				continue
			}
			e.parked = false
		}
		spent[addr].Add(spent[addr], e.tx.Cost())

		p.unlinkWaiting(addr, nonce)
		if p.inflight[addr] == nil {
			p.inflight[addr] = make(txList)
		}
		p.inflight[addr][nonce] = e
		out = append(out, e.tx)

		if ne, ok := p.accounts[addr][nonce+1]; ok {
			heap.Push(&h, ne)
		}
	}

	p.updateGauges()
	return out
}

// Restore returns in-flight txs to their queues after a failed build. Their
// original arrival sequence is kept, so a Drain followed by Restore leaves
// the pool as it was.
func (p *TxPool) Restore(txs []*types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tx := range txs {
		addr, nonce := tx.From(), tx.Nonce()
		e, ok := p.inflight[addr][nonce]
		if !ok || e.tx.Hash() != tx.Hash() {
			continue
		}
		p.unlinkInflight(addr, nonce)

		if nonce < p.chain.Nonce(addr) {
			delete(p.all, tx.Hash())
			continue
		}
		if p.accounts[addr] == nil {
			p.accounts[addr] = make(txList)
		}
		p.accounts[addr][nonce] = e
	}
	p.updateGauges()
}

// Included forgets txs sealed into a block and drops waiting txs that the
// new state made stale.
func (p *TxPool) Included(txs []*types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tx := range txs {
		addr, nonce := tx.From(), tx.Nonce()
		if e, ok := p.inflight[addr][nonce]; ok && e.tx.Hash() == tx.Hash() {
			p.unlinkInflight(addr, nonce)
		}
		if e, ok := p.accounts[addr][nonce]; ok && e.tx.Hash() == tx.Hash() {
			p.unlinkWaiting(addr, nonce)
		}
		delete(p.all, tx.Hash())
	}

	stale, unparked := 0, false
	for addr, list := range p.accounts {
		ledger := p.chain.Nonce(addr)
		for nonce, e := range list {
			if nonce < ledger {
				p.unlinkWaiting(addr, nonce)
				delete(p.all, e.tx.Hash())
				stale++
				continue
			}
			if e.parked && nonce == ledger && p.affordable(addr, new(big.Int), e.tx) {
				unparked = true
			}
		}
	}
	if stale > 0 {
		p.logger.Debug("Dropped stale transactions", "count", stale)
	}
	p.updateGauges()

	// a parked head the new state pays for is ready for the next build
	if unparked {
		p.signal()
	}
}

// Park marks the waiting tx hash as unbuildable after it failed to apply,
// so later builds go ahead without it. It stays in the pool and is drained
// again once its sender can afford it. The other waiting txs are signalled
// again since the failed build handed them back.
func (p *TxPool) Park(hash common.Hash) bool {
	p.mu.Lock()
	e, ok := p.all[hash]
	if ok {
		addr, nonce := e.tx.From(), e.tx.Nonce()
		if w, waiting := p.accounts[addr][nonce]; !waiting || w != e {
			ok = false
		}
	}
	if ok {
		e.parked = true
		p.logger.Info("Parked transaction that failed to apply", "hash", hash.Hex(), "from", e.tx.From().Hex(), "nonce", e.tx.Nonce())
	}
	rest := len(p.accounts) > 0
	p.mu.Unlock()

	if rest {
		p.signal()
	}
	return ok
}

// --------------------------------------------------------
// Maintenance
// --------------------------------------------------------

// Evict drops waiting txs admitted before olderThan. In-flight txs are
// never evicted.
func (p *TxPool) Evict(olderThan time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	dropped := 0
	for addr, list := range p.accounts {
		for nonce, e := range list {
			if e.added.Before(olderThan) {
				p.unlinkWaiting(addr, nonce)
				delete(p.all, e.tx.Hash())
				dropped++
			}
		}
	}
	if dropped > 0 {
		metrics.PoolEvicted.Add(float64(dropped))
		p.logger.Info("Evicted expired transactions", "count", dropped)
		p.updateGauges()
	}
	return dropped
}

// Remove drops a waiting tx by hash. It reports false for unknown and
// in-flight txs.
func (p *TxPool) Remove(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.all[hash]
	if !ok {
		return false
	}
	addr, nonce := e.tx.From(), e.tx.Nonce()
	if w, ok := p.accounts[addr][nonce]; !ok || w != e {
		return false
	}
	p.unlinkWaiting(addr, nonce)
	delete(p.all, hash)
	p.updateGauges()
	return true
}

// --------------------------------------------------------
// Queries
// --------------------------------------------------------

// Get returns a tx the pool holds, waiting or in flight.
func (p *TxPool) Get(hash common.Hash) *types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.all[hash]; ok {
		return e.tx
	}
	return nil
}

// PendingNonce is the next nonce addr should use, counting txs the pool
// already holds.
func (p *TxPool) PendingNonce(addr common.Address) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingNonce(addr, p.chain.Nonce(addr))
}

// Stats reports executable, gapped and in-flight tx counts.
func (p *TxPool) Stats() (pending, queued, inflight int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats()
}

// Content returns the waiting txs per sender in nonce order, split into
// executable and gapped.
func (p *TxPool) Content() (pending, queued map[common.Address][]*types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending = make(map[common.Address][]*types.Transaction)
	queued = make(map[common.Address][]*types.Transaction)
	for addr, list := range p.accounts {
		next := p.skipInflight(addr, p.chain.Nonce(addr))
		for _, e := range list.sorted() {
			if e.tx.Nonce() == next {
				pending[addr] = append(pending[addr], e.tx)
				next = p.skipInflight(addr, next+1)
				continue
			}
			queued[addr] = append(queued[addr], e.tx)
		}
	}
	return pending, queued
}

// --------------------------------------------------------
// Internal helpers, p.mu held
// --------------------------------------------------------

func (p *TxPool) signal() {
	select {
	case p.admissions <- struct{}{}:
	default:
	}
}

// affordable reports whether addr's balance, less spent, covers tx.
func (p *TxPool) affordable(addr common.Address, spent *big.Int, tx *types.Transaction) bool {
	left := new(big.Int).Sub(p.chain.Balance(addr), spent)
	return tx.Cost().Cmp(left) <= 0
}

func (p *TxPool) skipInflight(addr common.Address, nonce uint64) uint64 {
	for {
		if _, ok := p.inflight[addr][nonce]; !ok {
			return nonce
		}
		nonce++
	}
}

func (p *TxPool) pendingNonce(addr common.Address, ledger uint64) uint64 {
	nonce := ledger
	for {
		if _, ok := p.accounts[addr][nonce]; ok {
			nonce++
			continue
		}
		if _, ok := p.inflight[addr][nonce]; ok {
			nonce++
			continue
		}
		return nonce
	}
}

func (p *TxPool) stats() (pending, queued, inflight int) {
	for addr, list := range p.accounts {
		next := p.skipInflight(addr, p.chain.Nonce(addr))
		for _, e := range list.sorted() {
			if e.tx.Nonce() == next {
				pending++
				next = p.skipInflight(addr, next+1)
				continue
			}
			queued++
		}
	}
	for _, list := range p.inflight {
		inflight += len(list)
	}
	return pending, queued, inflight
}

func (p *TxPool) updateGauges() {
	pending, queued, _ := p.stats()
	metrics.PoolPending.Set(float64(pending))
	metrics.PoolQueued.Set(float64(queued))
}

func (p *TxPool) unlinkWaiting(addr common.Address, nonce uint64) {
	delete(p.accounts[addr], nonce)
	if len(p.accounts[addr]) == 0 {
		delete(p.accounts, addr)
	}
}

func (p *TxPool) unlinkInflight(addr common.Address, nonce uint64) {
	delete(p.inflight[addr], nonce)
	if len(p.inflight[addr]) == 0 {
		delete(p.inflight, addr)
	}
}
