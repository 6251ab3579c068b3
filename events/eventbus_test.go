package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/internal/testutil"
)

func TestPublishBlockReachesAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	a, unsubA := bus.SubscribeBlocks()
	b, unsubB := bus.SubscribeBlocks()
	defer unsubA()
	defer unsubB()

	block := types.NewBlock(&types.Header{Number: 1}, nil)
	bus.PublishBlock(block)

	assert.Equal(t, block, <-a)
	assert.Equal(t, block, <-b)
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch, unsub := bus.SubscribeBlocks()
	defer unsub()

	for i := 0; i < blockBuffer+10; i++ {
		bus.PublishBlock(types.NewBlock(&types.Header{Number: uint64(i)}, nil))
	}
	assert.Len(t, ch, blockBuffer)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch, unsub := bus.SubscribeTxs()

	blocks, txs := bus.Subscribers()
	assert.Equal(t, 0, blocks)
	assert.Equal(t, 1, txs)

	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	_, txs = bus.Subscribers()
	assert.Equal(t, 0, txs)

	// publishing after unsubscribe must not panic on the closed channel
	require.NotPanics(t, func() {
		bus.PublishTx(testutil.Transfer(t, testutil.Key(0), 0, testutil.Addr(1), 1))
	})
}
