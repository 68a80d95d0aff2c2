package aggregator

import "advisor-core/internal/strategy"

// queuedTrade pairs a signal with its arrival sequence number so that equal
// weights resolve first-come-first-served.
type queuedTrade struct {
	trade strategy.ScheduledTrade
	seq   uint64
}

// tradeQueue is a max-heap over signal weight, FIFO among equal weights.
// Used with container/heap.
type tradeQueue []queuedTrade

func (q tradeQueue) Len() int { return len(q) }

func (q tradeQueue) Less(i, j int) bool {
	if q[i].trade.Weight != q[j].trade.Weight {
		return q[i].trade.Weight > q[j].trade.Weight
	}
	return q[i].seq < q[j].seq
}

func (q tradeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *tradeQueue) Push(x any) { *q = append(*q, x.(queuedTrade)) }

func (q *tradeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
