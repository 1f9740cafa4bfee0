package strategy

import (
	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/trading/engine"
	"github.com/tradewire/tradewire/internal/wire"
)

// LiquidityTaker chases aggressive prints: when a trade consumes a
// large enough share of the resting liquidity, it crosses the spread
// in the same direction.
type LiquidityTaker struct {
	logger        *zap.Logger
	featureEngine *engine.FeatureEngine
	orderManager  *OrderManager
	cfgs          [common.MaxTickers]common.TradeEngineCfg
}

func NewLiquidityTaker(
	featureEngine *engine.FeatureEngine,
	orderManager *OrderManager,
	cfgs [common.MaxTickers]common.TradeEngineCfg,
	logger *zap.Logger,
) *LiquidityTaker {
	return &LiquidityTaker{
		logger:        logger,
		featureEngine: featureEngine,
		orderManager:  orderManager,
		cfgs:          cfgs,
	}
}

// OnTradeUpdate lifts the offer after an aggressive buy print, or
// hits the bid after an aggressive sell print.
func (lt *LiquidityTaker) OnTradeUpdate(update *wire.MarketUpdate, book *engine.MarketOrderBook) {
	bbo := book.BBO()
	aggRatio := lt.featureEngine.AggTradeQtyRatio()
	if !bbo.Valid() || !engine.FeatureValid(aggRatio) {
		return
	}

	cfg := lt.cfgs[update.TickerId]
	if aggRatio < cfg.Threshold {
		return
	}

	if update.Side == common.SideBuy {
		lt.orderManager.MoveOrders(update.TickerId, bbo.AskPrice, common.PriceInvalid, cfg.Clip)
	} else {
		lt.orderManager.MoveOrders(update.TickerId, common.PriceInvalid, bbo.BidPrice, cfg.Clip)
	}
}

// OnOrderBookUpdate is a no-op; the taker reacts to prints only.
func (lt *LiquidityTaker) OnOrderBookUpdate(tickerId common.TickerId, price common.Price, side common.Side, book *engine.MarketOrderBook) {
}

// OnOrderUpdate forwards the response to the order manager.
func (lt *LiquidityTaker) OnOrderUpdate(response *wire.ClientResponse) {
	lt.orderManager.OnOrderUpdate(response)
}
