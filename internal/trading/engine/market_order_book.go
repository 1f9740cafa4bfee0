package engine

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// BBO is the best bid and offer of one book, with quantity summed
// across all orders at the best price.
type BBO struct {
	BidPrice common.Price
	AskPrice common.Price
	BidQty   common.Qty
	AskQty   common.Qty
}

func (b *BBO) String() string {
	return fmt.Sprintf("BBO[%v@%v X %v@%v]", b.BidQty, b.BidPrice, b.AskQty, b.AskPrice)
}

// Valid reports whether both sides of the BBO are present.
func (b *BBO) Valid() bool {
	return b.BidPrice != common.PriceInvalid && b.AskPrice != common.PriceInvalid
}

func invalidBBO() BBO {
	return BBO{
		BidPrice: common.PriceInvalid,
		AskPrice: common.PriceInvalid,
		BidQty:   common.QtyInvalid,
		AskQty:   common.QtyInvalid,
	}
}

// Listener receives book events as the stream is applied. The trade
// engine implements it.
type Listener interface {
	OnOrderBookUpdate(tickerId common.TickerId, price common.Price, side common.Side, book *MarketOrderBook)
	OnTradeUpdate(update *wire.MarketUpdate, book *MarketOrderBook)
}

// MarketOrderBook reconstructs one ticker's book from market updates,
// keyed by exchange-assigned order id. It is owned by the trade
// engine thread.
type MarketOrderBook struct {
	tickerId common.TickerId
	listener Listener
	logger   *zap.Logger

	oidToOrder []*MarketOrder

	bidsByPrice *MarketOrdersAtPrice
	asksByPrice *MarketOrdersAtPrice
	priceLevels map[common.Price]*MarketOrdersAtPrice

	orderPool *common.Pool[MarketOrder]
	levelPool *common.Pool[MarketOrdersAtPrice]

	bbo BBO
}

// NewMarketOrderBook creates an empty reconstructed book.
func NewMarketOrderBook(tickerId common.TickerId, listener Listener, logger *zap.Logger) *MarketOrderBook {
	return &MarketOrderBook{
		tickerId:    tickerId,
		listener:    listener,
		logger:      logger,
		oidToOrder:  make([]*MarketOrder, common.MaxOrderIds),
		priceLevels: make(map[common.Price]*MarketOrdersAtPrice),
		orderPool:   common.NewPool[MarketOrder](fmt.Sprintf("mob.orders.%d", tickerId), common.MaxOrderIds),
		levelPool:   common.NewPool[MarketOrdersAtPrice](fmt.Sprintf("mob.levels.%d", tickerId), common.MaxPriceLevels),
		bbo:         invalidBBO(),
	}
}

// BBO returns the current best bid and offer.
func (b *MarketOrderBook) BBO() *BBO {
	return &b.bbo
}

// OnMarketUpdate applies one decoded update to the book. Trades are
// forwarded to the listener without touching book state; all other
// book-changing updates refresh the BBO when they could move it and
// then notify the listener.
func (b *MarketOrderBook) OnMarketUpdate(update *wire.MarketUpdate) {
	bidUpdated := update.Side == common.SideBuy &&
		(b.bidsByPrice == nil || update.Price >= b.bidsByPrice.Price)
	askUpdated := update.Side == common.SideSell &&
		(b.asksByPrice == nil || update.Price <= b.asksByPrice.Price)

	switch update.Type {
	case wire.UpdateAdd:
		order := b.orderPool.Get()
		*order = MarketOrder{
			OrderId:  update.OrderId,
			Side:     update.Side,
			Price:    update.Price,
			Qty:      update.Qty,
			Priority: update.Priority,
		}
		b.addOrder(order)
	case wire.UpdateModify:
		order := b.oidToOrder[update.OrderId]
		order.Qty = update.Qty
	case wire.UpdateCancel:
		b.removeOrder(b.oidToOrder[update.OrderId])
	case wire.UpdateTrade:
		b.listener.OnTradeUpdate(update, b)
		return
	case wire.UpdateClear:
		b.clear()
		bidUpdated, askUpdated = true, true
	case wire.UpdateSnapshotStart, wire.UpdateSnapshotEnd, wire.UpdateInvalid:
		return
	}

	b.updateBBO(bidUpdated, askUpdated)
	b.listener.OnOrderBookUpdate(b.tickerId, update.Price, update.Side, b)
}

func (b *MarketOrderBook) updateBBO(updateBid, updateAsk bool) {
	if updateBid {
		if b.bidsByPrice != nil {
			b.bbo.BidPrice = b.bidsByPrice.Price
			b.bbo.BidQty = b.bidsByPrice.totalQty()
		} else {
			b.bbo.BidPrice = common.PriceInvalid
			b.bbo.BidQty = common.QtyInvalid
		}
	}
	if updateAsk {
		if b.asksByPrice != nil {
			b.bbo.AskPrice = b.asksByPrice.Price
			b.bbo.AskQty = b.asksByPrice.totalQty()
		} else {
			b.bbo.AskPrice = common.PriceInvalid
			b.bbo.AskQty = common.QtyInvalid
		}
	}
}

// clear releases every order and level, emptying the book for a
// snapshot rebuild.
func (b *MarketOrderBook) clear() {
	for i, order := range b.oidToOrder {
		if order != nil {
			b.orderPool.Put(order)
			b.oidToOrder[i] = nil
		}
	}
	for price, level := range b.priceLevels {
		level.prev, level.next = nil, nil
		b.levelPool.Put(level)
		delete(b.priceLevels, price)
	}
	b.bidsByPrice, b.asksByPrice = nil, nil
	b.bbo = invalidBBO()
}

func (b *MarketOrderBook) addOrder(order *MarketOrder) {
	level := b.priceLevels[order.Price]
	if level == nil {
		order.prev, order.next = order, order
		level = b.levelPool.Get()
		*level = MarketOrdersAtPrice{Side: order.Side, Price: order.Price, firstOrder: order}
		b.addPriceLevel(level)
	} else {
		tail := level.firstOrder.prev
		tail.next = order
		order.prev = tail
		order.next = level.firstOrder
		level.firstOrder.prev = order
	}
	b.oidToOrder[order.OrderId] = order
}

func (b *MarketOrderBook) removeOrder(order *MarketOrder) {
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
	b.oidToOrder[order.OrderId] = nil
	b.orderPool.Put(order)
}

func (b *MarketOrderBook) addPriceLevel(level *MarketOrdersAtPrice) {
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

	target := head
	for betterPrice(level.Side, target.Price, level.Price) {
		target = target.next
		if target == head {
			break
		}
	}

	level.prev = target.prev
	level.next = target
	target.prev.next = level
	target.prev = level

	if betterPrice(level.Side, level.Price, head.Price) {
		b.setHead(level.Side, level)
	}
}

func (b *MarketOrderBook) removePriceLevel(side common.Side, price common.Price) {
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

func (b *MarketOrderBook) setHead(side common.Side, level *MarketOrdersAtPrice) {
	if side == common.SideBuy {
		b.bidsByPrice = level
	} else {
		b.asksByPrice = level
	}
}

func betterPrice(side common.Side, a, b common.Price) bool {
	if side == common.SideBuy {
		return a > b
	}
	return a < b
}

// String renders the reconstructed book best-to-worst per side.
func (b *MarketOrderBook) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticker:%d %v\n", b.tickerId, b.bbo.String())

	writeSide := func(name string, head *MarketOrdersAtPrice) {
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
