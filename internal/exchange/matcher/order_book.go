package matcher

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// Emitter receives the client responses and market updates the book
// produces while processing a request. The matching engine implements
// it by writing into its outbound SPSC queues.
type Emitter interface {
	SendClientResponse(r wire.ClientResponse)
	SendMarketUpdate(u wire.MarketUpdate)
}

// OrderBook is the price-time priority limit order book for one
// ticker. It is owned by the matching engine thread; no method is
// safe for concurrent use.
type OrderBook struct {
	tickerId common.TickerId
	emitter  Emitter
	logger   *zap.Logger

	// heads of the circular level lists, best price first
	bidsByPrice *OrdersAtPrice
	asksByPrice *OrdersAtPrice

	// one level per live price; bid and ask levels cannot share a
	// price while the book is uncrossed
	priceLevels map[common.Price]*OrdersAtPrice

	// client order id to live order, per client
	clientOrders [common.MaxClients]map[common.OrderId]*Order

	orderPool *common.Pool[Order]
	levelPool *common.Pool[OrdersAtPrice]

	nextMarketOrderId common.OrderId
}

// NewOrderBook creates an empty book for the ticker.
func NewOrderBook(tickerId common.TickerId, emitter Emitter, logger *zap.Logger) *OrderBook {
	return &OrderBook{
		tickerId:          tickerId,
		emitter:           emitter,
		logger:            logger,
		priceLevels:       make(map[common.Price]*OrdersAtPrice),
		orderPool:         common.NewPool[Order](fmt.Sprintf("matcher.orders.%d", tickerId), common.MaxOrderIds),
		levelPool:         common.NewPool[OrdersAtPrice](fmt.Sprintf("matcher.levels.%d", tickerId), common.MaxPriceLevels),
		nextMarketOrderId: 1,
	}
}

// Add processes a NEW request: accept, match against the far side,
// and rest any residual quantity.
func (b *OrderBook) Add(clientId common.ClientId, clientOrderId common.OrderId, side common.Side, price common.Price, qty common.Qty) {
	marketOrderId := b.nextMarketOrderId
	b.nextMarketOrderId++

	b.emitter.SendClientResponse(wire.ClientResponse{
		Type:          wire.ResponseAccepted,
		ClientId:      clientId,
		TickerId:      b.tickerId,
		ClientOrderId: clientOrderId,
		MarketOrderId: marketOrderId,
		Side:          side,
		Price:         price,
		ExecQty:       0,
		LeavesQty:     qty,
	})

	leavesQty := b.match(clientId, clientOrderId, marketOrderId, side, price, qty)
	if leavesQty == 0 {
		return
	}

	priority := b.nextPriority(price)
	order := b.orderPool.Get()
	*order = Order{
		TickerId:      b.tickerId,
		ClientId:      clientId,
		ClientOrderId: clientOrderId,
		MarketOrderId: marketOrderId,
		Side:          side,
		Price:         price,
		Qty:           leavesQty,
		Priority:      priority,
	}
	b.addOrder(order)

	b.emitter.SendMarketUpdate(wire.MarketUpdate{
		Type:     wire.UpdateAdd,
		OrderId:  marketOrderId,
		TickerId: b.tickerId,
		Side:     side,
		Price:    price,
		Qty:      leavesQty,
		Priority: priority,
	})
}

// Cancel processes a CANCEL request. Unknown orders soft-fail with
// CANCEL_REJECTED.
func (b *OrderBook) Cancel(clientId common.ClientId, clientOrderId common.OrderId) {
	var order *Order
	if clientId < common.MaxClients && b.clientOrders[clientId] != nil {
		order = b.clientOrders[clientId][clientOrderId]
	}

	if order == nil {
		b.emitter.SendClientResponse(wire.ClientResponse{
			Type:          wire.ResponseCancelRejected,
			ClientId:      clientId,
			TickerId:      b.tickerId,
			ClientOrderId: clientOrderId,
			MarketOrderId: common.OrderIdInvalid,
			Side:          common.SideInvalid,
			Price:         common.PriceInvalid,
			ExecQty:       common.QtyInvalid,
			LeavesQty:     common.QtyInvalid,
		})
		return
	}

	update := wire.MarketUpdate{
		Type:     wire.UpdateCancel,
		OrderId:  order.MarketOrderId,
		TickerId: b.tickerId,
		Side:     order.Side,
		Price:    order.Price,
		Qty:      0,
		Priority: order.Priority,
	}
	response := wire.ClientResponse{
		Type:          wire.ResponseCanceled,
		ClientId:      clientId,
		TickerId:      b.tickerId,
		ClientOrderId: clientOrderId,
		MarketOrderId: order.MarketOrderId,
		Side:          order.Side,
		Price:         order.Price,
		ExecQty:       common.QtyInvalid,
		LeavesQty:     order.Qty,
	}

	b.removeOrder(order)
	b.emitter.SendMarketUpdate(update)
	b.emitter.SendClientResponse(response)
}

// match consumes resting orders on the far side while the aggressor
// still crosses, returning the aggressor's unfilled quantity.
func (b *OrderBook) match(clientId common.ClientId, clientOrderId, marketOrderId common.OrderId, side common.Side, price common.Price, qty common.Qty) common.Qty {
	leavesQty := qty

	if side == common.SideBuy {
		for leavesQty > 0 && b.asksByPrice != nil && price >= b.asksByPrice.Price {
			leavesQty = b.fill(clientId, clientOrderId, marketOrderId, side, b.asksByPrice.firstOrder, leavesQty)
		}
	}
	if side == common.SideSell {
		for leavesQty > 0 && b.bidsByPrice != nil && price <= b.bidsByPrice.Price {
			leavesQty = b.fill(clientId, clientOrderId, marketOrderId, side, b.bidsByPrice.firstOrder, leavesQty)
		}
	}

	return leavesQty
}

// fill executes one aggressor-vs-passive fill and emits, in order,
// the aggressor FILLED response, the passive FILLED response, the
// TRADE update, and finally the passive order's CANCEL (full fill)
// or MODIFY (partial) update.
func (b *OrderBook) fill(clientId common.ClientId, clientOrderId, marketOrderId common.OrderId, side common.Side, passive *Order, leavesQty common.Qty) common.Qty {
	passiveQty := passive.Qty
	fillQty := min(leavesQty, passiveQty)

	leavesQty -= fillQty
	passive.Qty -= fillQty

	b.emitter.SendClientResponse(wire.ClientResponse{
		Type:          wire.ResponseFilled,
		ClientId:      clientId,
		TickerId:      b.tickerId,
		ClientOrderId: clientOrderId,
		MarketOrderId: marketOrderId,
		Side:          side,
		Price:         passive.Price,
		ExecQty:       fillQty,
		LeavesQty:     leavesQty,
	})
	b.emitter.SendClientResponse(wire.ClientResponse{
		Type:          wire.ResponseFilled,
		ClientId:      passive.ClientId,
		TickerId:      b.tickerId,
		ClientOrderId: passive.ClientOrderId,
		MarketOrderId: passive.MarketOrderId,
		Side:          passive.Side,
		Price:         passive.Price,
		ExecQty:       fillQty,
		LeavesQty:     passive.Qty,
	})
	b.emitter.SendMarketUpdate(wire.MarketUpdate{
		Type:     wire.UpdateTrade,
		OrderId:  common.OrderIdInvalid,
		TickerId: b.tickerId,
		Side:     side,
		Price:    passive.Price,
		Qty:      fillQty,
		Priority: common.PriorityInvalid,
	})

	if passive.Qty == 0 {
		b.emitter.SendMarketUpdate(wire.MarketUpdate{
			Type:     wire.UpdateCancel,
			OrderId:  passive.MarketOrderId,
			TickerId: b.tickerId,
			Side:     passive.Side,
			Price:    passive.Price,
			Qty:      passiveQty,
			Priority: common.PriorityInvalid,
		})
		b.removeOrder(passive)
	} else {
		b.emitter.SendMarketUpdate(wire.MarketUpdate{
			Type:     wire.UpdateModify,
			OrderId:  passive.MarketOrderId,
			TickerId: b.tickerId,
			Side:     passive.Side,
			Price:    passive.Price,
			Qty:      passive.Qty,
			Priority: passive.Priority,
		})
	}

	return leavesQty
}

// nextPriority mints the next FIFO rank at a price: one past the
// level's current tail, or 1 for a fresh level.
func (b *OrderBook) nextPriority(price common.Price) common.Priority {
	if level := b.priceLevels[price]; level != nil {
		return level.firstOrder.prev.Priority + 1
	}
	return 1
}

// addOrder appends the order at its level's FIFO tail, creating and
// splicing in the level if this is the first order at the price.
func (b *OrderBook) addOrder(order *Order) {
	level := b.priceLevels[order.Price]
	if level == nil {
		order.prev, order.next = order, order
		level = b.levelPool.Get()
		*level = OrdersAtPrice{Side: order.Side, Price: order.Price, firstOrder: order}
		b.addPriceLevel(level)
	} else {
		tail := level.firstOrder.prev
		tail.next = order
		order.prev = tail
		order.next = level.firstOrder
		level.firstOrder.prev = order
	}

	if b.clientOrders[order.ClientId] == nil {
		b.clientOrders[order.ClientId] = make(map[common.OrderId]*Order)
	}
	b.clientOrders[order.ClientId][order.ClientOrderId] = order
}

// removeOrder unlinks the order from its level's FIFO, dropping the
// level when it empties, and releases the order to the pool.
func (b *OrderBook) removeOrder(order *Order) {
	if order.prev == order {
		b.removePriceLevel(order.Side, order.Price)
	} else {
		level := b.priceLevels[order.Price]
		order.prev.next = order.next
		order.next.prev = order.prev
		if level.firstOrder == order {
			level.firstOrder = order.next
		}
		order.prev, order.next = nil, nil
	}

	delete(b.clientOrders[order.ClientId], order.ClientOrderId)
	b.orderPool.Put(order)
}

// better reports whether price a ranks ahead of price b on the side.
func better(side common.Side, a, b common.Price) bool {
	if side == common.SideBuy {
		return a > b
	}
	return a < b
}

// addPriceLevel splices the level into the circular best-to-worst
// list for its side.
func (b *OrderBook) addPriceLevel(level *OrdersAtPrice) {
	b.priceLevels[level.Price] = level

	head := b.bidsByPrice
	if level.Side == common.SideSell {
		head = b.asksByPrice
	}

	if head == nil {
		level.prev, level.next = level, level
		b.setHead(level.Side, level)
		return
	}

	// walk from the best level to the first level the new price
	// outranks; wrapping back to head means the new level is worst
	target := head
	for better(level.Side, target.Price, level.Price) {
		target = target.next
		if target == head {
			break
		}
	}

	// insert before target
	level.prev = target.prev
	level.next = target
	target.prev.next = level
	target.prev = level

	if better(level.Side, level.Price, head.Price) {
		b.setHead(level.Side, level)
	}
}

// removePriceLevel unlinks the level and releases it to the pool.
func (b *OrderBook) removePriceLevel(side common.Side, price common.Price) {
	level := b.priceLevels[price]
	head := b.bidsByPrice
	if side == common.SideSell {
		head = b.asksByPrice
	}

	if level.next == level {
		b.setHead(side, nil)
	} else {
		level.prev.next = level.next
		level.next.prev = level.prev
		if level == head {
			b.setHead(side, level.next)
		}
		level.prev, level.next = nil, nil
	}

	delete(b.priceLevels, price)
	b.levelPool.Put(level)
}

func (b *OrderBook) setHead(side common.Side, level *OrdersAtPrice) {
	if side == common.SideBuy {
		b.bidsByPrice = level
	} else {
		b.asksByPrice = level
	}
}

// String renders the book best-to-worst per side, one line per level
// with aggregate qty and order count.
func (b *OrderBook) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticker:%d\n", b.tickerId)

	writeSide := func(name string, head *OrdersAtPrice) {
		if head == nil {
			return
		}
		i := 0
		for level := head; ; level = level.next {
			fmt.Fprintf(&sb, "%s L:%d => %v @ %v (%d)\n", name, i, level.Price, level.totalQty(), level.numOrders())
			i++
			if level.next == head {
				break
			}
		}
	}

	writeSide("ASKS", b.asksByPrice)
	sb.WriteString("            X\n")
	writeSide("BIDS", b.bidsByPrice)
	return sb.String()
}
