package txpool

import (
	"sort"
	"time"

	"github.com/Siasom1/gorrillazz-devnet/core/types"
)

// entry is a tx plus the bookkeeping the pool needs to order and expire it.
// seq is assigned once on admission and survives drain/restore.
type entry struct {
	tx     *types.Transaction
	seq    uint64
	added  time.Time
	parked bool
}

// txList is one sender's waiting txs keyed by nonce.
type txList map[uint64]*entry

// sorted returns the entries in nonce order.
func (l txList) sorted() []*entry {
	out := make([]*entry, 0, len(l))
	for _, e := range l {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].tx.Nonce() < out[j].tx.Nonce()
	})
	return out
}

// headHeap orders sender heads by arrival sequence for Drain.
type headHeap []*entry

func (h headHeap) Len() int            { return len(h) }
func (h headHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h headHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *headHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }
func (h *headHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
