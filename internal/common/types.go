package common

import (
	"fmt"
	"math"
	"time"
)

// Scalar types shared by the exchange and trading processes. All
// identifiers and quantities are fixed-width integers with an invalid
// sentinel per type.
type (
	ClientId uint32
	TickerId uint32
	OrderId  uint64
	Price    int64
	Qty      uint32
	Priority uint64
	Nanos    int64
)

const (
	ClientIdInvalid ClientId = math.MaxUint32
	TickerIdInvalid TickerId = math.MaxUint32
	OrderIdInvalid  OrderId  = math.MaxUint64
	PriceInvalid    Price    = math.MinInt64
	QtyInvalid      Qty      = math.MaxUint32
	PriorityInvalid Priority = math.MaxUint64
)

// Compiled-in sizing limits for the exchange.
const (
	MaxTickers       = 8
	MaxClients       = 256
	MaxOrderIds      = 64 * 1024
	MaxPriceLevels   = 256
	MaxClientUpdates = 64 * 1024
	MaxMarketUpdates = 64 * 1024
)

// Side represents the direction of an order.
type Side int8

const (
	SideInvalid Side = 0
	SideBuy     Side = 1
	SideSell    Side = -1
)

// Value maps BUY to +1 and SELL to -1 for signed position arithmetic.
func (s Side) Value() int32 {
	return int32(s)
}

// Index maps a valid side to a dense array index (BUY=0, SELL=1).
func (s Side) Index() int {
	if s == SideBuy {
		return 0
	}
	return 1
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	}
	return "INVALID"
}

func (p Price) String() string {
	if p == PriceInvalid {
		return "INVALID"
	}
	return fmt.Sprintf("%d", int64(p))
}

func (q Qty) String() string {
	if q == QtyInvalid {
		return "INVALID"
	}
	return fmt.Sprintf("%d", uint32(q))
}

func (o OrderId) String() string {
	if o == OrderIdInvalid {
		return "INVALID"
	}
	return fmt.Sprintf("%d", uint64(o))
}

// NowNanos returns the current wall-clock time in nanoseconds.
func NowNanos() Nanos {
	return Nanos(time.Now().UnixNano())
}
