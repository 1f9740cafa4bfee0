package matcher

import (
	"fmt"

	"github.com/tradewire/tradewire/internal/common"
)

// Order is a resting limit order inside the matching engine's book.
// Orders at the same price form a circular doubly-linked FIFO; a
// single-order level has prev == next == self.
type Order struct {
	TickerId      common.TickerId
	ClientId      common.ClientId
	ClientOrderId common.OrderId
	MarketOrderId common.OrderId
	Side          common.Side
	Price         common.Price
	Qty           common.Qty
	Priority      common.Priority

	prev, next *Order
}

func (o *Order) String() string {
	return fmt.Sprintf("Order[ticker:%d client:%d coid:%v moid:%v side:%v price:%v qty:%v prio:%d]",
		o.TickerId, o.ClientId, o.ClientOrderId, o.MarketOrderId, o.Side, o.Price, o.Qty, o.Priority)
}

// OrdersAtPrice is one price level: the FIFO of orders at that price
// plus its links in the circular list of levels ordered best to
// worst.
type OrdersAtPrice struct {
	Side  common.Side
	Price common.Price

	firstOrder *Order

	prev, next *OrdersAtPrice
}

// totalQty sums the displayed quantity across the level's FIFO.
func (l *OrdersAtPrice) totalQty() common.Qty {
	qty := l.firstOrder.Qty
	for o := l.firstOrder.next; o != l.firstOrder; o = o.next {
		qty += o.Qty
	}
	return qty
}

func (l *OrdersAtPrice) numOrders() int {
	n := 1
	for o := l.firstOrder.next; o != l.firstOrder; o = o.next {
		n++
	}
	return n
}
