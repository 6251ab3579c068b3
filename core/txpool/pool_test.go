package txpool

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/internal/testutil"
)

type fakeLedger struct {
	mu       sync.Mutex
	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int
}

// defaultBalance funds every account the test did not set explicitly.
var defaultBalance = big.NewInt(1_000_000)

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		nonces:   make(map[common.Address]uint64),
		balances: make(map[common.Address]*big.Int),
	}
}

func (l *fakeLedger) ChainID() *big.Int { return new(big.Int).Set(testutil.ChainID) }

func (l *fakeLedger) Nonce(addr common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[addr]
}

func (l *fakeLedger) Balance(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int).Set(defaultBalance)
}

func (l *fakeLedger) fund(addr common.Address, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = big.NewInt(balance)
}

func (l *fakeLedger) set(addr common.Address, nonce uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonces[addr] = nonce
}

type recordingFeed struct {
	mu  sync.Mutex
	txs []*types.Transaction
}

func (f *recordingFeed) PublishTx(tx *types.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, tx)
}

func newTestPool(t *testing.T) (*TxPool, *fakeLedger) {
	t.Helper()
	ledger := newFakeLedger()
	return NewTxPool(DefaultConfig(), ledger, nil, nil), ledger
}

func transfer(t *testing.T, sender int, nonce uint64) *types.Transaction {
	return testutil.Transfer(t, testutil.Key(sender), nonce, testutil.Addr(99), 1)
}

func hashes(txs []*types.Transaction) []common.Hash {
	out := make([]common.Hash, len(txs))
	for i, tx := range txs {
		out[i] = tx.Hash()
	}
	return out
}

func TestSubmitRejections(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		pool, _ := newTestPool(t)
		_, err := pool.Submit(nil)
		require.ErrorIs(t, err, ErrMalformedTransaction)
	})

	t.Run("undecodable raw", func(t *testing.T) {
		pool, _ := newTestPool(t)
		_, err := pool.SubmitRaw([]byte{0xde, 0xad})
		require.ErrorIs(t, err, ErrMalformedTransaction)
	})

	t.Run("gas above cap", func(t *testing.T) {
		pool, _ := newTestPool(t)
		to := testutil.Addr(1)
		signed := testutil.SignLegacy(t, testutil.Key(0), &gethtypes.LegacyTx{
			To: &to, Gas: DefaultConfig().MaxTxGas + 1, Value: big.NewInt(0), GasPrice: big.NewInt(0),
		})
		tx, err := types.NewTransaction(signed, testutil.ChainID)
		require.NoError(t, err)

		_, err = pool.Submit(tx)
		require.ErrorIs(t, err, ErrMalformedTransaction)
	})

	t.Run("gas below intrinsic", func(t *testing.T) {
		pool, _ := newTestPool(t)
		to := testutil.Addr(1)
		signed := testutil.SignLegacy(t, testutil.Key(0), &gethtypes.LegacyTx{
			To: &to, Gas: 20_000, Value: big.NewInt(0), GasPrice: big.NewInt(0),
		})
		tx, err := types.NewTransaction(signed, testutil.ChainID)
		require.NoError(t, err)

		_, err = pool.Submit(tx)
		require.ErrorIs(t, err, ErrMalformedTransaction)
	})

	t.Run("nonce too low", func(t *testing.T) {
		pool, ledger := newTestPool(t)
		ledger.set(testutil.Addr(0), 2)

		_, err := pool.Submit(transfer(t, 0, 1))
		require.ErrorIs(t, err, ErrInvalidNonce)
	})

	t.Run("duplicate", func(t *testing.T) {
		pool, _ := newTestPool(t)
		tx := transfer(t, 0, 0)
		_, err := pool.Submit(tx)
		require.NoError(t, err)

		_, err = pool.Submit(tx)
		require.ErrorIs(t, err, ErrAlreadyKnown)
	})

	t.Run("nonce taken", func(t *testing.T) {
		pool, _ := newTestPool(t)
		_, err := pool.Submit(transfer(t, 0, 0))
		require.NoError(t, err)

		other := testutil.Transfer(t, testutil.Key(0), 0, testutil.Addr(5), 7)
		_, err = pool.Submit(other)
		require.ErrorIs(t, err, ErrNonceTaken)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		pool, ledger := newTestPool(t)
		ledger.fund(testutil.Addr(0), 10)

		_, err := pool.Submit(testutil.Transfer(t, testutil.Key(0), 0, testutil.Addr(1), 11))
		require.ErrorIs(t, err, ErrInsufficientFunds)

		_, err = pool.Submit(testutil.Transfer(t, testutil.Key(0), 0, testutil.Addr(1), 10))
		require.NoError(t, err)
	})

	t.Run("account slots", func(t *testing.T) {
		ledger := newFakeLedger()
		pool := NewTxPool(Config{GlobalSlots: 10, AccountSlots: 2}, ledger, nil, nil)
		_, err := pool.Submit(transfer(t, 0, 0))
		require.NoError(t, err)
		_, err = pool.Submit(transfer(t, 0, 1))
		require.NoError(t, err)

		_, err = pool.Submit(transfer(t, 0, 2))
		require.ErrorIs(t, err, ErrPoolFull)
		_, err = pool.Submit(transfer(t, 1, 0))
		require.NoError(t, err)
	})

	t.Run("global slots", func(t *testing.T) {
		ledger := newFakeLedger()
		pool := NewTxPool(Config{GlobalSlots: 2, AccountSlots: 2}, ledger, nil, nil)
		_, err := pool.Submit(transfer(t, 0, 0))
		require.NoError(t, err)
		_, err = pool.Submit(transfer(t, 1, 0))
		require.NoError(t, err)

		_, err = pool.Submit(transfer(t, 2, 0))
		require.ErrorIs(t, err, ErrPoolFull)
	})
}

func TestSubmitQueuesFutureNonces(t *testing.T) {
	pool, _ := newTestPool(t)

	adm, err := pool.Submit(transfer(t, 0, 1))
	require.NoError(t, err)
	assert.True(t, adm.Queued)

	pending, queued, _ := pool.Stats()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, queued)
	assert.Empty(t, pool.Drain(0))

	adm, err = pool.Submit(transfer(t, 0, 0))
	require.NoError(t, err)
	assert.False(t, adm.Queued)
	assert.Equal(t, uint64(2), pool.PendingNonce(testutil.Addr(0)))

	pending, queued, _ = pool.Stats()
	assert.Equal(t, 2, pending)
	assert.Equal(t, 0, queued)
}

func TestAdmissionsCoalesce(t *testing.T) {
	feed := &recordingFeed{}
	pool := NewTxPool(DefaultConfig(), newFakeLedger(), feed, nil)

	for i := 0; i < 3; i++ {
		_, err := pool.Submit(transfer(t, i, 0))
		require.NoError(t, err)
	}

	assert.Len(t, pool.Admissions(), 1)
	<-pool.Admissions()
	assert.Len(t, pool.Admissions(), 0)
	assert.Len(t, feed.txs, 3)
}

func TestDrainOrder(t *testing.T) {
	pool, _ := newTestPool(t)

	a0, b0, a1, c1, b1 := transfer(t, 0, 0), transfer(t, 1, 0), transfer(t, 0, 1), transfer(t, 2, 1), transfer(t, 1, 1)
	for _, tx := range []*types.Transaction{a0, b0, a1, c1, b1} {
		_, err := pool.Submit(tx)
		require.NoError(t, err)
	}

	// c1 has a nonce gap and must stay behind
	got := pool.Drain(0)
	assert.Equal(t, hashes([]*types.Transaction{a0, b0, a1, b1}), hashes(got))

	_, queued, inflight := pool.Stats()
	assert.Equal(t, 1, queued)
	assert.Equal(t, 4, inflight)
}

func TestDrainHonoursMax(t *testing.T) {
	pool, _ := newTestPool(t)
	for n := uint64(0); n < 5; n++ {
		_, err := pool.Submit(transfer(t, 0, n))
		require.NoError(t, err)
	}

	first := pool.Drain(2)
	require.Len(t, first, 2)
	assert.Equal(t, uint64(0), first[0].Nonce())
	assert.Equal(t, uint64(1), first[1].Nonce())

	// in-flight nonces are skipped, not re-drained
	second := pool.Drain(0)
	require.Len(t, second, 3)
	assert.Equal(t, uint64(2), second[0].Nonce())
}

func TestDrainRestoreIsIdempotent(t *testing.T) {
	pool, _ := newTestPool(t)
	for sender := 0; sender < 4; sender++ {
		for n := uint64(0); n < 3; n++ {
			_, err := pool.Submit(transfer(t, sender, n))
			require.NoError(t, err)
		}
	}
	_, err := pool.Submit(transfer(t, 5, 4))
	require.NoError(t, err)

	pendingBefore, queuedBefore := pool.Content()

	drained := pool.Drain(0)
	require.Len(t, drained, 12)
	pool.Restore(drained)

	pendingAfter, queuedAfter := pool.Content()
	assert.Equal(t, pendingBefore, pendingAfter)
	assert.Equal(t, queuedBefore, queuedAfter)

	again := pool.Drain(0)
	assert.Equal(t, hashes(drained), hashes(again))
}

func TestInFlightCannotBeResubmitted(t *testing.T) {
	pool, _ := newTestPool(t)
	tx := transfer(t, 0, 0)
	_, err := pool.Submit(tx)
	require.NoError(t, err)

	require.Len(t, pool.Drain(0), 1)

	_, err = pool.Submit(tx)
	require.ErrorIs(t, err, ErrAlreadyKnown)
	_, err = pool.Submit(testutil.Transfer(t, testutil.Key(0), 0, testutil.Addr(3), 3))
	require.ErrorIs(t, err, ErrNonceTaken)
	assert.NotNil(t, pool.Get(tx.Hash()))
	assert.False(t, pool.Remove(tx.Hash()))

	adm, err := pool.Submit(transfer(t, 0, 1))
	require.NoError(t, err)
	assert.False(t, adm.Queued)
}

func TestIncluded(t *testing.T) {
	pool, ledger := newTestPool(t)
	sealed := transfer(t, 0, 0)
	stale := transfer(t, 1, 0)
	next := transfer(t, 0, 1)
	for _, tx := range []*types.Transaction{sealed, stale, next} {
		_, err := pool.Submit(tx)
		require.NoError(t, err)
	}

	got := pool.Drain(1)
	require.Equal(t, sealed.Hash(), got[0].Hash())

	// sender 1's nonce moved on without the pool's tx
	ledger.set(testutil.Addr(0), 1)
	ledger.set(testutil.Addr(1), 1)
	pool.Included(got)

	assert.Nil(t, pool.Get(sealed.Hash()))
	assert.Nil(t, pool.Get(stale.Hash()))
	pending, queued, inflight := pool.Stats()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 0, queued)
	assert.Equal(t, 0, inflight)

	rest := pool.Drain(0)
	require.Len(t, rest, 1)
	assert.Equal(t, next.Hash(), rest[0].Hash())
}

func TestEvictAndRemove(t *testing.T) {
	pool, _ := newTestPool(t)
	old := transfer(t, 0, 0)
	_, err := pool.Submit(old)
	require.NoError(t, err)

	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)

	fresh := transfer(t, 1, 0)
	_, err = pool.Submit(fresh)
	require.NoError(t, err)

	assert.Equal(t, 1, pool.Evict(cutoff))
	assert.Nil(t, pool.Get(old.Hash()))
	assert.NotNil(t, pool.Get(fresh.Hash()))

	assert.True(t, pool.Remove(fresh.Hash()))
	assert.False(t, pool.Remove(fresh.Hash()))
	pending, queued, _ := pool.Stats()
	assert.Zero(t, pending+queued)
}

func TestConcurrentSubmitDuringDrain(t *testing.T) {
	pool, ledger := newTestPool(t)
	const senders = 40

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := pool.Submit(transfer(t, i, 0))
			assert.NoError(t, err)
		}(i)
	}

	seen := make(map[common.Hash]int)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	drainOnce := func() {
		batch := pool.Drain(0)
		for _, tx := range batch {
			seen[tx.Hash()]++
			ledger.set(tx.From(), tx.Nonce()+1)
		}
		pool.Included(batch)
	}

loop:
	for {
		select {
		case <-done:
			break loop
		default:
			drainOnce()
		}
	}
	drainOnce()

	assert.Len(t, seen, senders)
	for hash, n := range seen {
		assert.Equal(t, 1, n, "tx %s drained more than once", hash.Hex())
	}
}

func TestParkedTxWaitsForFunds(t *testing.T) {
	pool, ledger := newTestPool(t)
	ledger.fund(testutil.Addr(0), 100)

	first := testutil.Transfer(t, testutil.Key(0), 0, testutil.Addr(1), 60)
	overdraw := testutil.Transfer(t, testutil.Key(0), 1, testutil.Addr(1), 60)
	after := testutil.Transfer(t, testutil.Key(0), 2, testutil.Addr(1), 1)
	other := transfer(t, 1, 0)
	for _, tx := range []*types.Transaction{first, overdraw, after, other} {
		_, err := pool.Submit(tx)
		require.NoError(t, err)
	}
	<-pool.Admissions()

	// a failed build hands the batch back and parks the tx that broke it
	batch := pool.Drain(0)
	require.Len(t, batch, 4)
	pool.Restore(batch)
	require.True(t, pool.Park(overdraw.Hash()))
	assert.Len(t, pool.Admissions(), 1, "the restored txs are signalled again")
	<-pool.Admissions()

	pending, _ := pool.Content()
	assert.Len(t, pending[testutil.Addr(0)], 3, "parked txs stay in the pool")

	batch = pool.Drain(0)
	assert.Equal(t, []common.Hash{first.Hash(), other.Hash()}, hashes(batch))

	// first is sealed: 40 left, still short of 60
	ledger.set(testutil.Addr(0), 1)
	ledger.fund(testutil.Addr(0), 40)
	pool.Included(batch)
	assert.Len(t, pool.Admissions(), 0)
	assert.Empty(t, pool.Drain(0))

	// funds arrive
	ledger.fund(testutil.Addr(0), 1_000)
	pool.Included(nil)
	assert.Len(t, pool.Admissions(), 1)
	assert.Equal(t, []common.Hash{overdraw.Hash(), after.Hash()}, hashes(pool.Drain(0)))
}

func TestParkIgnoresUnknownAndInflight(t *testing.T) {
	pool, _ := newTestPool(t)
	assert.False(t, pool.Park(common.Hash{0x01}))

	tx := transfer(t, 0, 0)
	_, err := pool.Submit(tx)
	require.NoError(t, err)
	pool.Drain(0)
	assert.False(t, pool.Park(tx.Hash()))
}
