// Package dropcopy mirrors the exchange's outbound client responses
// onto a Kafka stream for surveillance bookkeeping. It sits entirely
// off the trading path: the order server enqueues into a bounded
// queue that drops when full, and a background publisher drains it.
package dropcopy

import (
	"github.com/google/uuid"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// Event is one drop-copied client response as published on the
// stream. EventID makes downstream consumption idempotent.
type Event struct {
	EventID       string `json:"event_id"`
	ClientID      uint32 `json:"client_id"`
	TickerID      uint32 `json:"ticker_id"`
	ClientOrderID uint64 `json:"client_order_id"`
	MarketOrderID uint64 `json:"market_order_id"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	Price         int64  `json:"price"`
	ExecQty       uint32 `json:"exec_qty"`
	LeavesQty     uint32 `json:"leaves_qty"`
	TsUnixNanos   int64  `json:"ts_unix_nanos"`
}

// NewEvent builds the drop-copy event for a response, minting a fresh
// event id.
func NewEvent(resp wire.ClientResponse, ts common.Nanos) Event {
	return Event{
		EventID:       uuid.NewString(),
		ClientID:      uint32(resp.ClientId),
		TickerID:      uint32(resp.TickerId),
		ClientOrderID: uint64(resp.ClientOrderId),
		MarketOrderID: uint64(resp.MarketOrderId),
		Type:          resp.Type.String(),
		Side:          resp.Side.String(),
		Price:         int64(resp.Price),
		ExecQty:       uint32(resp.ExecQty),
		LeavesQty:     uint32(resp.LeavesQty),
		TsUnixNanos:   int64(ts),
	}
}
