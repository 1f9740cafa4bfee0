package engine

import (
	"math"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// FeatureInvalid marks a feature that cannot be computed yet.
func FeatureInvalid() float64 {
	return math.NaN()
}

// FeatureValid reports whether a feature value has been computed.
func FeatureValid(f float64) bool {
	return !math.IsNaN(f)
}

// FeatureEngine derives the two signals the strategies trade on: a
// quantity-weighted fair price from the BBO, and the ratio of an
// aggressive trade's size to the liquidity resting on the side it
// hit.
type FeatureEngine struct {
	logger *zap.Logger

	mktPrice         float64
	aggTradeQtyRatio float64
}

func NewFeatureEngine(logger *zap.Logger) *FeatureEngine {
	return &FeatureEngine{
		logger:           logger,
		mktPrice:         FeatureInvalid(),
		aggTradeQtyRatio: FeatureInvalid(),
	}
}

// MktPrice returns the last computed fair price.
func (f *FeatureEngine) MktPrice() float64 {
	return f.mktPrice
}

// AggTradeQtyRatio returns the last computed aggressive trade ratio.
func (f *FeatureEngine) AggTradeQtyRatio() float64 {
	return f.aggTradeQtyRatio
}

// OnOrderBookUpdate recomputes the fair price when both sides of the
// BBO are present.
func (f *FeatureEngine) OnOrderBookUpdate(tickerId common.TickerId, price common.Price, side common.Side, book *MarketOrderBook) {
	bbo := book.BBO()
	if !bbo.Valid() {
		return
	}
	f.mktPrice = (float64(bbo.BidPrice)*float64(bbo.AskQty) + float64(bbo.AskPrice)*float64(bbo.BidQty)) /
		float64(bbo.BidQty+bbo.AskQty)
}

// OnTradeUpdate recomputes the aggressive trade ratio against the
// liquidity the print consumed.
func (f *FeatureEngine) OnTradeUpdate(update *wire.MarketUpdate, book *MarketOrderBook) {
	bbo := book.BBO()
	if !bbo.Valid() {
		return
	}
	restingQty := bbo.BidQty
	if update.Side == common.SideBuy {
		restingQty = bbo.AskQty
	}
	f.aggTradeQtyRatio = float64(update.Qty) / float64(restingQty)
}
