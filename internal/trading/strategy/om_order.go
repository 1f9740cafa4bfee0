// Package strategy holds the trading algorithms and the order and
// risk management they share.
package strategy

import (
	"fmt"

	"github.com/tradewire/tradewire/internal/common"
)

// OMOrderState tracks one managed order through its exchange round
// trips.
type OMOrderState uint8

const (
	OMOrderInvalid OMOrderState = iota
	OMOrderPendingNew
	OMOrderLive
	OMOrderPendingCancel
	OMOrderDead
)

func (s OMOrderState) String() string {
	switch s {
	case OMOrderPendingNew:
		return "PENDING_NEW"
	case OMOrderLive:
		return "LIVE"
	case OMOrderPendingCancel:
		return "PENDING_CANCEL"
	case OMOrderDead:
		return "DEAD"
	}
	return "INVALID"
}

// OMOrder is the order manager's record of the single order it keeps
// per ticker and side.
type OMOrder struct {
	TickerId common.TickerId
	OrderId  common.OrderId
	Side     common.Side
	Price    common.Price
	Qty      common.Qty
	State    OMOrderState
}

func (o *OMOrder) String() string {
	return fmt.Sprintf("OMOrder[ticker:%d oid:%v side:%v price:%v qty:%v state:%v]",
		o.TickerId, o.OrderId, o.Side, o.Price, o.Qty, o.State)
}
