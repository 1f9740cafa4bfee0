package strategy

import (
	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/trading/engine"
	"github.com/tradewire/tradewire/internal/wire"
)

// MarketMaker quotes both sides of the book, joining the BBO on the
// side the fair price favors and shading one tick away on the other.
type MarketMaker struct {
	logger        *zap.Logger
	featureEngine *engine.FeatureEngine
	orderManager  *OrderManager
	cfgs          [common.MaxTickers]common.TradeEngineCfg
}

func NewMarketMaker(
	featureEngine *engine.FeatureEngine,
	orderManager *OrderManager,
	cfgs [common.MaxTickers]common.TradeEngineCfg,
	logger *zap.Logger,
) *MarketMaker {
	return &MarketMaker{
		logger:        logger,
		featureEngine: featureEngine,
		orderManager:  orderManager,
		cfgs:          cfgs,
	}
}

// OnOrderBookUpdate requotes around the new BBO and fair price.
func (mm *MarketMaker) OnOrderBookUpdate(tickerId common.TickerId, price common.Price, side common.Side, book *engine.MarketOrderBook) {
	bbo := book.BBO()
	fairPrice := mm.featureEngine.MktPrice()
	if !bbo.Valid() || !engine.FeatureValid(fairPrice) {
		return
	}

	cfg := mm.cfgs[tickerId]

	bidPrice := bbo.BidPrice
	if fairPrice-float64(bbo.BidPrice) < cfg.Threshold {
		bidPrice--
	}
	askPrice := bbo.AskPrice
	if float64(bbo.AskPrice)-fairPrice < cfg.Threshold {
		askPrice++
	}

	mm.orderManager.MoveOrders(tickerId, bidPrice, askPrice, cfg.Clip)
}

// OnTradeUpdate is a no-op; the maker reacts to book changes only.
func (mm *MarketMaker) OnTradeUpdate(update *wire.MarketUpdate, book *engine.MarketOrderBook) {
}

// OnOrderUpdate forwards the response to the order manager.
func (mm *MarketMaker) OnOrderUpdate(response *wire.ClientResponse) {
	mm.orderManager.OnOrderUpdate(response)
}
