package events

import (
	"sync"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
)

const (
	blockBuffer = 16
	txBuffer    = 64
)

// EventBus fans out sealed blocks and newly admitted transactions. Sends
// never block: a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu        sync.RWMutex
	nextID    uint64
	blockSubs map[uint64]chan *types.Block
	txSubs    map[uint64]chan *types.Transaction
}

// Unsubscribe removes a subscription and closes its channel. It may be
// called more than once.
type Unsubscribe func()

func NewEventBus() *EventBus {
	return &EventBus{
		blockSubs: make(map[uint64]chan *types.Block),
		txSubs:    make(map[uint64]chan *types.Transaction),
	}
}

// -------------------- Blocks --------------------

func (b *EventBus) SubscribeBlocks() (<-chan *types.Block, Unsubscribe) {
	ch := make(chan *types.Block, blockBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.blockSubs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.blockSubs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *EventBus) PublishBlock(block *types.Block) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.blockSubs {
		// non-blocking send
		select {
		case ch <- block:
		default:
		}
	}
}

// -------------------- Transactions --------------------

func (b *EventBus) SubscribeTxs() (<-chan *types.Transaction, Unsubscribe) {
	ch := make(chan *types.Transaction, txBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.txSubs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.txSubs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *EventBus) PublishTx(tx *types.Transaction) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.txSubs {
		select {
		case ch <- tx:
		default:
		}
	}
}

// Subscribers reports the number of live block and tx subscriptions.
func (b *EventBus) Subscribers() (blocks, txs int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blockSubs), len(b.txSubs)
}
