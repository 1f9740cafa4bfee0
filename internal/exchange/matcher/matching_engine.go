package matcher

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// MatchingEngine drains client requests from the order server and
// feeds responses back to it and market updates to the publisher. It
// owns one OrderBook per ticker and runs on a single dedicated thread;
// the SPSC endpoints pin the whole pipeline to one writer and one
// reader per queue.
type MatchingEngine struct {
	logger *zap.Logger

	requests  *common.Consumer[wire.ClientRequest]
	responses *common.Producer[wire.ClientResponse]
	updates   *common.Producer[wire.MarketUpdate]

	books [common.MaxTickers]*OrderBook

	running atomic.Bool
	done    <-chan struct{}

	requestsProcessed atomic.Uint64
}

// NewMatchingEngine wires the engine to its three queues and builds
// the per-ticker books.
func NewMatchingEngine(
	requests *common.Consumer[wire.ClientRequest],
	responses *common.Producer[wire.ClientResponse],
	updates *common.Producer[wire.MarketUpdate],
	logger *zap.Logger,
) *MatchingEngine {
	me := &MatchingEngine{
		logger:    logger,
		requests:  requests,
		responses: responses,
		updates:   updates,
	}
	for i := range me.books {
		me.books[i] = NewOrderBook(common.TickerId(i), me, logger)
	}
	return me
}

// Start launches the engine loop on its own OS thread.
func (me *MatchingEngine) Start() {
	me.running.Store(true)
	me.done = common.StartThread("matching-engine", me.run)
	me.logger.Info("matching engine started", zap.Int("tickers", common.MaxTickers))
}

// Stop asks the loop to exit and waits for it.
func (me *MatchingEngine) Stop() {
	me.running.Store(false)
	if me.done != nil {
		<-me.done
	}
	me.logger.Info("matching engine stopped",
		zap.Uint64("requests_processed", me.requestsProcessed.Load()))
}

func (me *MatchingEngine) run() {
	for me.running.Load() {
		req := me.requests.Peek()
		if req == nil {
			runtime.Gosched()
			continue
		}
		me.processRequest(req)
		me.requests.CommitRead()
		me.requestsProcessed.Add(1)
	}
}

func (me *MatchingEngine) processRequest(req *wire.ClientRequest) {
	if req.TickerId >= common.MaxTickers {
		me.logger.Fatal("request for ticker out of range", zap.String("request", req.String()))
	}
	book := me.books[req.TickerId]

	switch req.Type {
	case wire.RequestNew:
		book.Add(req.ClientId, req.OrderId, req.Side, req.Price, req.Qty)
	case wire.RequestCancel:
		book.Cancel(req.ClientId, req.OrderId)
	default:
		me.logger.Fatal("unknown client request type", zap.String("request", req.String()))
	}
}

// SendClientResponse queues a response for the order server, spinning
// if the queue is full.
func (me *MatchingEngine) SendClientResponse(r wire.ClientResponse) {
	me.responses.Write(r)
}

// SendMarketUpdate queues an update for the market data publisher,
// spinning if the queue is full.
func (me *MatchingEngine) SendMarketUpdate(u wire.MarketUpdate) {
	me.updates.Write(u)
}
