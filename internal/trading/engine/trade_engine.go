package engine

import (
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// Algo is a trading algorithm driven by the trade engine's event
// dispatch. The strategies implement it.
type Algo interface {
	OnOrderBookUpdate(tickerId common.TickerId, price common.Price, side common.Side, book *MarketOrderBook)
	OnTradeUpdate(update *wire.MarketUpdate, book *MarketOrderBook)
	OnOrderUpdate(response *wire.ClientResponse)
}

// nopAlgo is installed until SetAlgo is called.
type nopAlgo struct{}

func (nopAlgo) OnOrderBookUpdate(common.TickerId, common.Price, common.Side, *MarketOrderBook) {}
func (nopAlgo) OnTradeUpdate(*wire.MarketUpdate, *MarketOrderBook)                             {}
func (nopAlgo) OnOrderUpdate(*wire.ClientResponse)                                             {}

// TradeEngine is the client-side core loop. It drains order responses
// and market updates from its inbound queues, maintains the books,
// features, and positions, and forwards each event to the algorithm.
type TradeEngine struct {
	logger   *zap.Logger
	clientId common.ClientId

	requests  *common.Producer[wire.ClientRequest]
	responses *common.Consumer[wire.ClientResponse]
	updates   *common.Consumer[wire.MarketUpdate]

	books [common.MaxTickers]*MarketOrderBook

	featureEngine  *FeatureEngine
	positionKeeper *PositionKeeper

	algo Algo

	running       atomic.Bool
	done          <-chan struct{}
	lastEventTime atomic.Int64

	eventsProcessed atomic.Uint64
}

// NewTradeEngine wires the engine to its queues and builds the
// per-ticker books.
func NewTradeEngine(
	clientId common.ClientId,
	requests *common.Producer[wire.ClientRequest],
	responses *common.Consumer[wire.ClientResponse],
	updates *common.Consumer[wire.MarketUpdate],
	logger *zap.Logger,
) *TradeEngine {
	te := &TradeEngine{
		logger:         logger,
		clientId:       clientId,
		requests:       requests,
		responses:      responses,
		updates:        updates,
		featureEngine:  NewFeatureEngine(logger),
		positionKeeper: NewPositionKeeper(logger),
		algo:           nopAlgo{},
	}
	for i := range te.books {
		te.books[i] = NewMarketOrderBook(common.TickerId(i), te, logger)
	}
	return te
}

// SetAlgo installs the trading algorithm. Must be called before
// Start.
func (te *TradeEngine) SetAlgo(algo Algo) {
	te.algo = algo
}

// ClientId returns the engine's trading client id.
func (te *TradeEngine) ClientId() common.ClientId {
	return te.clientId
}

// FeatureEngine exposes the computed features to the strategies.
func (te *TradeEngine) FeatureEngine() *FeatureEngine {
	return te.featureEngine
}

// PositionKeeper exposes the per-ticker positions, used by the risk
// checks.
func (te *TradeEngine) PositionKeeper() *PositionKeeper {
	return te.positionKeeper
}

// Start launches the engine loop on its own OS thread.
func (te *TradeEngine) Start() {
	te.running.Store(true)
	te.lastEventTime.Store(int64(common.NowNanos()))
	te.done = common.StartThread("trade-engine", te.run)
	te.logger.Info("trade engine started", zap.Uint32("client_id", uint32(te.clientId)))
}

// Stop waits for the loop to drain both inbound queues, then asks it
// to exit and logs the final position report. In-flight fills arriving
// during shutdown still land in the report.
func (te *TradeEngine) Stop() {
	if te.running.Load() {
		for !te.QueuesDrained() {
			time.Sleep(time.Millisecond)
		}
	}
	te.running.Store(false)
	if te.done != nil {
		<-te.done
	}
	te.logger.Info("trade engine stopped",
		zap.Uint64("events_processed", te.eventsProcessed.Load()))
	te.logger.Info("final positions\n" + te.positionKeeper.String())
}

// SilentDuration reports how long the engine has gone without an
// inbound event. The trading binary shuts down once this exceeds its
// idle limit.
func (te *TradeEngine) SilentDuration() time.Duration {
	return time.Duration(int64(common.NowNanos()) - te.lastEventTime.Load())
}

// QueuesDrained reports whether both inbound queues are empty.
func (te *TradeEngine) QueuesDrained() bool {
	return te.responses.Len() == 0 && te.updates.Len() == 0
}

func (te *TradeEngine) run() {
	for te.running.Load() {
		progressed := false

		if resp := te.responses.Peek(); resp != nil {
			te.onOrderUpdate(resp)
			te.responses.CommitRead()
			progressed = true
		}
		if update := te.updates.Peek(); update != nil {
			te.onMarketUpdate(update)
			te.updates.CommitRead()
			progressed = true
		}

		if progressed {
			te.lastEventTime.Store(int64(common.NowNanos()))
			te.eventsProcessed.Add(1)
		} else {
			runtime.Gosched()
		}
	}
}

// SendClientRequest queues an order request for the gateway.
func (te *TradeEngine) SendClientRequest(request wire.ClientRequest) {
	te.logger.Debug("sending request", zap.String("request", request.String()))
	te.requests.Write(request)
}

func (te *TradeEngine) onOrderUpdate(response *wire.ClientResponse) {
	te.logger.Debug("order update", zap.String("response", response.String()))
	if response.Type == wire.ResponseFilled {
		te.positionKeeper.AddFill(response)
	}
	te.algo.OnOrderUpdate(response)
}

func (te *TradeEngine) onMarketUpdate(update *wire.MarketUpdate) {
	if update.TickerId >= common.MaxTickers {
		te.logger.Error("market update for ticker out of range",
			zap.String("update", update.String()))
		return
	}
	te.books[update.TickerId].OnMarketUpdate(update)
}

// OnOrderBookUpdate implements Listener: remark positions, refresh
// features, then hand the event to the algorithm.
func (te *TradeEngine) OnOrderBookUpdate(tickerId common.TickerId, price common.Price, side common.Side, book *MarketOrderBook) {
	te.positionKeeper.UpdateBBO(tickerId, book.BBO())
	te.featureEngine.OnOrderBookUpdate(tickerId, price, side, book)
	te.algo.OnOrderBookUpdate(tickerId, price, side, book)
}

// OnTradeUpdate implements Listener.
func (te *TradeEngine) OnTradeUpdate(update *wire.MarketUpdate, book *MarketOrderBook) {
	te.featureEngine.OnTradeUpdate(update, book)
	te.algo.OnTradeUpdate(update, book)
}
