package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// captureAlgo records the dispatches it receives.
type captureAlgo struct {
	mu          sync.Mutex
	bookUpdates int
	trades      int
	orders      []wire.ClientResponse
}

func (a *captureAlgo) OnOrderBookUpdate(common.TickerId, common.Price, common.Side, *MarketOrderBook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bookUpdates++
}

func (a *captureAlgo) OnTradeUpdate(*wire.MarketUpdate, *MarketOrderBook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades++
}

func (a *captureAlgo) OnOrderUpdate(r *wire.ClientResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders = append(a.orders, *r)
}

func (a *captureAlgo) counts() (int, int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bookUpdates, a.trades, len(a.orders)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestTradeEngineDispatchesEvents(t *testing.T) {
	reqProd, _ := common.NewSPSC[wire.ClientRequest](64)
	respProd, respCons := common.NewSPSC[wire.ClientResponse](64)
	updProd, updCons := common.NewSPSC[wire.MarketUpdate](64)

	te := NewTradeEngine(7, reqProd, respCons, updCons, zap.NewNop())
	algo := &captureAlgo{}
	te.SetAlgo(algo)
	te.Start()
	defer te.Stop()

	updProd.Write(wire.MarketUpdate{
		Type: wire.UpdateAdd, OrderId: 1, TickerId: 0,
		Side: common.SideBuy, Price: 99, Qty: 10, Priority: 1,
	})
	updProd.Write(wire.MarketUpdate{
		Type: wire.UpdateTrade, OrderId: common.OrderIdInvalid, TickerId: 0,
		Side: common.SideSell, Price: 99, Qty: 2, Priority: common.PriorityInvalid,
	})
	respProd.Write(wire.ClientResponse{
		Type: wire.ResponseFilled, ClientId: 7, TickerId: 0,
		Side: common.SideBuy, Price: 99, ExecQty: 2, LeavesQty: 0,
	})

	waitUntil(t, func() bool {
		books, trades, orders := algo.counts()
		return books >= 1 && trades >= 1 && orders >= 1
	})

	// the fill flowed into the position keeper before the algo saw it
	assert.Equal(t, int64(2), te.PositionKeeper().Position(0).Position)
}

func TestStopDrainsInFlightFills(t *testing.T) {
	reqProd, _ := common.NewSPSC[wire.ClientRequest](64)
	respProd, respCons := common.NewSPSC[wire.ClientResponse](64)
	updProd, updCons := common.NewSPSC[wire.MarketUpdate](64)

	te := NewTradeEngine(7, reqProd, respCons, updCons, zap.NewNop())
	te.Start()

	for i := 0; i < 32; i++ {
		respProd.Write(wire.ClientResponse{
			Type: wire.ResponseFilled, ClientId: 7, TickerId: 0,
			Side: common.SideBuy, Price: 99, ExecQty: 1, LeavesQty: 0,
		})
		updProd.Write(wire.MarketUpdate{
			Type: wire.UpdateAdd, OrderId: common.OrderId(i + 1), TickerId: 0,
			Side: common.SideBuy, Price: 99, Qty: 1, Priority: common.Priority(i + 1),
		})
	}
	te.Stop()

	assert.True(t, te.QueuesDrained())
	assert.Equal(t, int64(32), te.PositionKeeper().Position(0).Position)
}

func TestTradeEngineSilentDuration(t *testing.T) {
	reqProd, _ := common.NewSPSC[wire.ClientRequest](64)
	_, respCons := common.NewSPSC[wire.ClientResponse](64)
	updProd, updCons := common.NewSPSC[wire.MarketUpdate](64)

	te := NewTradeEngine(7, reqProd, respCons, updCons, zap.NewNop())
	te.Start()
	defer te.Stop()

	time.Sleep(20 * time.Millisecond)
	require.GreaterOrEqual(t, te.SilentDuration(), 10*time.Millisecond)

	updProd.Write(wire.MarketUpdate{
		Type: wire.UpdateAdd, OrderId: 1, TickerId: 0,
		Side: common.SideBuy, Price: 99, Qty: 1, Priority: 1,
	})
	waitUntil(t, func() bool { return te.SilentDuration() < 10*time.Millisecond })
	assert.True(t, te.QueuesDrained())
}
