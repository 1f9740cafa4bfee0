package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/trading/engine"
	"github.com/tradewire/tradewire/internal/wire"
)

// bookListener satisfies the book's listener without a trade engine.
type bookListener struct{}

func (bookListener) OnOrderBookUpdate(common.TickerId, common.Price, common.Side, *engine.MarketOrderBook) {
}
func (bookListener) OnTradeUpdate(*wire.MarketUpdate, *engine.MarketOrderBook) {}

// buildBook assembles a two-sided book: bid at 99, ask at 101, with
// the given quantities.
func buildBook(t *testing.T, bidQty, askQty common.Qty) *engine.MarketOrderBook {
	t.Helper()
	book := engine.NewMarketOrderBook(1, bookListener{}, zap.NewNop())
	book.OnMarketUpdate(&wire.MarketUpdate{
		Type: wire.UpdateAdd, OrderId: 1, TickerId: 1,
		Side: common.SideBuy, Price: 99, Qty: bidQty, Priority: 1,
	})
	book.OnMarketUpdate(&wire.MarketUpdate{
		Type: wire.UpdateAdd, OrderId: 2, TickerId: 1,
		Side: common.SideSell, Price: 101, Qty: askQty, Priority: 1,
	})
	return book
}

func newStrategyFixture(t *testing.T) (*engine.FeatureEngine, *OrderManager, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	pk := engine.NewPositionKeeper(zap.NewNop())
	rm := NewRiskManager(pk, testCfgs(10, 50), zap.NewNop())
	om := NewOrderManager(sender, rm, zap.NewNop())
	return engine.NewFeatureEngine(zap.NewNop()), om, sender
}

func TestMarketMakerShadesAwayFromFairPrice(t *testing.T) {
	fe, om, sender := newStrategyFixture(t)
	mm := NewMarketMaker(fe, om, testCfgs(10, 50), zap.NewNop())

	// bid 3 x ask 17 puts fair price at 99.3: close to the bid, far
	// from the ask
	book := buildBook(t, 3, 17)
	fe.OnOrderBookUpdate(1, 101, common.SideSell, book)
	require.InDelta(t, 99.3, fe.MktPrice(), 1e-9)

	mm.OnOrderBookUpdate(1, 101, common.SideSell, book)

	require.Len(t, sender.requests, 2)
	// fair barely above the bid: step the quote a tick away
	assert.Equal(t, common.SideBuy, sender.requests[0].Side)
	assert.Equal(t, common.Price(98), sender.requests[0].Price)
	// fair well below the ask: join it
	assert.Equal(t, common.SideSell, sender.requests[1].Side)
	assert.Equal(t, common.Price(101), sender.requests[1].Price)
}

func TestMarketMakerJoinsBidWhenFairIsHigh(t *testing.T) {
	fe, om, sender := newStrategyFixture(t)
	mm := NewMarketMaker(fe, om, testCfgs(10, 50), zap.NewNop())

	// bid 17 x ask 3 puts fair price at 100.7
	book := buildBook(t, 17, 3)
	fe.OnOrderBookUpdate(1, 101, common.SideSell, book)
	require.InDelta(t, 100.7, fe.MktPrice(), 1e-9)

	mm.OnOrderBookUpdate(1, 101, common.SideSell, book)

	require.Len(t, sender.requests, 2)
	assert.Equal(t, common.Price(99), sender.requests[0].Price)
	assert.Equal(t, common.Price(102), sender.requests[1].Price)
}

func TestMarketMakerSilentWithoutFairPrice(t *testing.T) {
	fe, om, sender := newStrategyFixture(t)
	mm := NewMarketMaker(fe, om, testCfgs(10, 50), zap.NewNop())

	book := buildBook(t, 3, 17)
	// feature engine never saw the book: no fair price, no quotes
	mm.OnOrderBookUpdate(1, 101, common.SideSell, book)

	assert.Empty(t, sender.requests)
}

func TestLiquidityTakerChasesLargeBuyPrint(t *testing.T) {
	fe, om, sender := newStrategyFixture(t)
	lt := NewLiquidityTaker(fe, om, testCfgs(10, 50), zap.NewNop())

	book := buildBook(t, 10, 10)
	trade := &wire.MarketUpdate{
		Type: wire.UpdateTrade, TickerId: 1,
		Side: common.SideBuy, Price: 101, Qty: 8,
	}
	fe.OnTradeUpdate(trade, book)
	require.InDelta(t, 0.8, fe.AggTradeQtyRatio(), 1e-9)

	lt.OnTradeUpdate(trade, book)

	require.Len(t, sender.requests, 1)
	assert.Equal(t, common.SideBuy, sender.requests[0].Side)
	assert.Equal(t, common.Price(101), sender.requests[0].Price) // lift the offer
}

func TestLiquidityTakerHitsBidOnSellPrint(t *testing.T) {
	fe, om, sender := newStrategyFixture(t)
	lt := NewLiquidityTaker(fe, om, testCfgs(10, 50), zap.NewNop())

	book := buildBook(t, 10, 10)
	trade := &wire.MarketUpdate{
		Type: wire.UpdateTrade, TickerId: 1,
		Side: common.SideSell, Price: 99, Qty: 8,
	}
	fe.OnTradeUpdate(trade, book)
	lt.OnTradeUpdate(trade, book)

	require.Len(t, sender.requests, 1)
	assert.Equal(t, common.SideSell, sender.requests[0].Side)
	assert.Equal(t, common.Price(99), sender.requests[0].Price)
}

func TestLiquidityTakerIgnoresSmallPrints(t *testing.T) {
	fe, om, sender := newStrategyFixture(t)
	lt := NewLiquidityTaker(fe, om, testCfgs(10, 50), zap.NewNop())

	book := buildBook(t, 10, 10)
	trade := &wire.MarketUpdate{
		Type: wire.UpdateTrade, TickerId: 1,
		Side: common.SideBuy, Price: 101, Qty: 2,
	}
	fe.OnTradeUpdate(trade, book)
	require.InDelta(t, 0.2, fe.AggTradeQtyRatio(), 1e-9)

	lt.OnTradeUpdate(trade, book)
	assert.Empty(t, sender.requests)
}
