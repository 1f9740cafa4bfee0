// Package engine is the client-side trading core: it reconstructs
// per-ticker order books from the market data stream, derives
// features and positions, and dispatches events to the configured
// trading algorithm.
package engine

import (
	"fmt"

	"github.com/tradewire/tradewire/internal/common"
)

// MarketOrder is one live order reconstructed from the market data
// stream. Orders at a price form a circular doubly-linked FIFO.
type MarketOrder struct {
	OrderId  common.OrderId
	Side     common.Side
	Price    common.Price
	Qty      common.Qty
	Priority common.Priority

	prev, next *MarketOrder
}

func (o *MarketOrder) String() string {
	return fmt.Sprintf("MarketOrder[oid:%v side:%v price:%v qty:%v prio:%d]",
		o.OrderId, o.Side, o.Price, o.Qty, o.Priority)
}

// MarketOrdersAtPrice is one reconstructed price level, linked into
// the circular best-to-worst list for its side.
type MarketOrdersAtPrice struct {
	Side  common.Side
	Price common.Price

	firstOrder *MarketOrder

	prev, next *MarketOrdersAtPrice
}

func (l *MarketOrdersAtPrice) totalQty() common.Qty {
	qty := l.firstOrder.Qty
	for o := l.firstOrder.next; o != l.firstOrder; o = o.next {
		qty += o.Qty
	}
	return qty
}

func (l *MarketOrdersAtPrice) numOrders() int {
	n := 1
	for o := l.firstOrder.next; o != l.firstOrder; o = o.next {
		n++
	}
	return n
}
