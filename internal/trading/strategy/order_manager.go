package strategy

import (
	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// RequestSender queues order requests toward the exchange. The trade
// engine implements it.
type RequestSender interface {
	SendClientRequest(request wire.ClientRequest)
	ClientId() common.ClientId
}

// OrderManager keeps at most one working order per ticker and side
// and converges each toward the price its strategy wants, one
// exchange round trip at a time.
type OrderManager struct {
	logger      *zap.Logger
	sender      RequestSender
	riskManager *RiskManager

	tickerSideOrder [common.MaxTickers][2]OMOrder
	nextOrderId     common.OrderId
}

func NewOrderManager(sender RequestSender, riskManager *RiskManager, logger *zap.Logger) *OrderManager {
	return &OrderManager{
		logger:      logger,
		sender:      sender,
		riskManager: riskManager,
		nextOrderId: 1,
	}
}

// Order returns the managed order for a ticker and side.
func (om *OrderManager) Order(tickerId common.TickerId, side common.Side) *OMOrder {
	return &om.tickerSideOrder[tickerId][side.Index()]
}

// MoveOrders converges both sides of a ticker toward the target
// prices. A PriceInvalid target leaves that side alone or, for a live
// order, takes it down on the next pass.
func (om *OrderManager) MoveOrders(tickerId common.TickerId, bidPrice, askPrice common.Price, clip common.Qty) {
	om.moveOrder(om.Order(tickerId, common.SideBuy), tickerId, bidPrice, clip, common.SideBuy)
	om.moveOrder(om.Order(tickerId, common.SideSell), tickerId, askPrice, clip, common.SideSell)
}

func (om *OrderManager) moveOrder(order *OMOrder, tickerId common.TickerId, price common.Price, qty common.Qty, side common.Side) {
	switch order.State {
	case OMOrderLive:
		if order.Price != price {
			om.cancelOrder(order)
		}
	case OMOrderInvalid, OMOrderDead:
		if price == common.PriceInvalid {
			return
		}
		risk := om.riskManager.CheckPreTradeRisk(tickerId, side, qty)
		if risk != RiskAllowed {
			om.logger.Warn("order blocked by risk check",
				zap.Uint32("ticker_id", uint32(tickerId)),
				zap.String("side", side.String()),
				zap.String("result", risk.String()))
			return
		}
		om.newOrder(order, tickerId, price, qty, side)
	case OMOrderPendingNew, OMOrderPendingCancel:
		// wait for the exchange to answer
	}
}

// OnOrderUpdate advances the managed order's state machine from an
// exchange response.
func (om *OrderManager) OnOrderUpdate(response *wire.ClientResponse) {
	order := om.Order(response.TickerId, response.Side)

	switch response.Type {
	case wire.ResponseAccepted:
		order.State = OMOrderLive
	case wire.ResponseCanceled:
		order.State = OMOrderDead
	case wire.ResponseFilled:
		order.Qty = response.LeavesQty
		if order.Qty == 0 {
			order.State = OMOrderDead
		}
	case wire.ResponseCancelRejected, wire.ResponseInvalid:
		// no state change
	}
}

func (om *OrderManager) newOrder(order *OMOrder, tickerId common.TickerId, price common.Price, qty common.Qty, side common.Side) {
	om.sender.SendClientRequest(wire.ClientRequest{
		Type:     wire.RequestNew,
		ClientId: om.sender.ClientId(),
		TickerId: tickerId,
		OrderId:  om.nextOrderId,
		Side:     side,
		Price:    price,
		Qty:      qty,
	})

	*order = OMOrder{
		TickerId: tickerId,
		OrderId:  om.nextOrderId,
		Side:     side,
		Price:    price,
		Qty:      qty,
		State:    OMOrderPendingNew,
	}
	om.nextOrderId++
}

func (om *OrderManager) cancelOrder(order *OMOrder) {
	om.sender.SendClientRequest(wire.ClientRequest{
		Type:     wire.RequestCancel,
		ClientId: om.sender.ClientId(),
		TickerId: order.TickerId,
		OrderId:  order.OrderId,
		Side:     order.Side,
		Price:    order.Price,
		Qty:      order.Qty,
	})
	order.State = OMOrderPendingCancel
}
