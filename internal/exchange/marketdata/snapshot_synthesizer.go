package marketdata

import (
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// SnapshotSynthesizer maintains a shadow of every live order from the
// sequenced incremental stream and periodically publishes a full book
// snapshot on the snapshot feed. A snapshot cycle is numbered from 0
// and framed by SNAPSHOT_START and SNAPSHOT_END, both carrying the
// last applied incremental sequence number in the OrderId field.
type SnapshotSynthesizer struct {
	logger *zap.Logger

	incrementals *common.Consumer[wire.SeqMarketUpdate]
	snapshot     Sender
	interval     time.Duration

	// live orders keyed by ticker then dense market order id
	tickerOrders [common.MaxTickers][]*wire.MarketUpdate
	orderPool    *common.Pool[wire.MarketUpdate]

	lastIncSeqNum uint64
	lastSnapshot  time.Time

	running atomic.Bool
	done    <-chan struct{}

	snapshotsPublished atomic.Uint64
}

// NewSnapshotSynthesizer builds a synthesizer reading the publisher's
// sequenced stream and emitting cycles every interval.
func NewSnapshotSynthesizer(
	incrementals *common.Consumer[wire.SeqMarketUpdate],
	snapshot Sender,
	interval time.Duration,
	logger *zap.Logger,
) *SnapshotSynthesizer {
	s := &SnapshotSynthesizer{
		logger:       logger,
		incrementals: incrementals,
		snapshot:     snapshot,
		interval:     interval,
		orderPool:    common.NewPool[wire.MarketUpdate]("md.snapshot.orders", common.MaxOrderIds),
	}
	for i := range s.tickerOrders {
		s.tickerOrders[i] = make([]*wire.MarketUpdate, common.MaxOrderIds)
	}
	return s
}

// Start launches the synthesizer loop on its own OS thread.
func (s *SnapshotSynthesizer) Start() {
	s.running.Store(true)
	s.lastSnapshot = time.Now()
	s.done = common.StartThread("md-snapshot-synthesizer", s.run)
	s.logger.Info("snapshot synthesizer started", zap.Duration("interval", s.interval))
}

// Stop asks the loop to exit and waits for it.
func (s *SnapshotSynthesizer) Stop() {
	s.running.Store(false)
	if s.done != nil {
		<-s.done
	}
	s.logger.Info("snapshot synthesizer stopped",
		zap.Uint64("snapshots_published", s.snapshotsPublished.Load()))
}

func (s *SnapshotSynthesizer) run() {
	for s.running.Load() {
		progressed := false
		for {
			update := s.incrementals.Peek()
			if update == nil {
				break
			}
			s.apply(update)
			s.incrementals.CommitRead()
			progressed = true
		}

		if time.Since(s.lastSnapshot) >= s.interval {
			s.Publish()
			s.lastSnapshot = time.Now()
		}

		if !progressed {
			runtime.Gosched()
		}
	}
}

// apply folds one sequenced incremental into the shadow book. The
// publisher feeds this queue losslessly, so any sequence gap here is a
// programming error.
func (s *SnapshotSynthesizer) apply(u *wire.SeqMarketUpdate) {
	if u.SeqNum != s.lastIncSeqNum+1 {
		s.logger.Fatal("incremental sequence gap in synthesizer",
			zap.Uint64("expected", s.lastIncSeqNum+1), zap.Uint64("got", u.SeqNum))
	}
	s.lastIncSeqNum = u.SeqNum

	orders := s.tickerOrders[u.Update.TickerId]
	switch u.Update.Type {
	case wire.UpdateAdd:
		if orders[u.Update.OrderId] != nil {
			s.logger.Fatal("ADD for live order in synthesizer",
				zap.String("update", u.Update.String()))
		}
		order := s.orderPool.Get()
		*order = u.Update
		orders[u.Update.OrderId] = order
	case wire.UpdateModify:
		order := orders[u.Update.OrderId]
		if order == nil {
			s.logger.Fatal("MODIFY for unknown order in synthesizer",
				zap.String("update", u.Update.String()))
		}
		order.Qty = u.Update.Qty
		order.Price = u.Update.Price
	case wire.UpdateCancel:
		if orders[u.Update.OrderId] == nil {
			s.logger.Fatal("CANCEL for unknown order in synthesizer",
				zap.String("update", u.Update.String()))
		}
		s.orderPool.Put(orders[u.Update.OrderId])
		orders[u.Update.OrderId] = nil
	case wire.UpdateTrade, wire.UpdateClear, wire.UpdateSnapshotStart, wire.UpdateSnapshotEnd, wire.UpdateInvalid:
		// no book state to track
	}
}

// Publish emits one full snapshot cycle on the snapshot feed.
func (s *SnapshotSynthesizer) Publish() {
	snapshotSeq := uint64(0)
	send := func(u wire.MarketUpdate) {
		var buf [wire.SeqMarketUpdateSize]byte
		seqUpdate := wire.SeqMarketUpdate{SeqNum: snapshotSeq, Update: u}
		seqUpdate.Encode(buf[:])
		if err := s.snapshot.Send(buf[:]); err != nil {
			s.logger.Error("snapshot feed send failed",
				zap.Uint64("seq_num", snapshotSeq), zap.Error(err))
		}
		snapshotSeq++
	}

	send(wire.MarketUpdate{
		Type:    wire.UpdateSnapshotStart,
		OrderId: common.OrderId(s.lastIncSeqNum),
	})

	for tickerId := range s.tickerOrders {
		send(wire.MarketUpdate{
			Type:     wire.UpdateClear,
			OrderId:  common.OrderIdInvalid,
			TickerId: common.TickerId(tickerId),
			Price:    common.PriceInvalid,
			Priority: common.PriorityInvalid,
		})
		// ascending market order id is ascending time priority
		for _, order := range s.tickerOrders[tickerId] {
			if order != nil {
				send(*order)
			}
		}
	}

	send(wire.MarketUpdate{
		Type:    wire.UpdateSnapshotEnd,
		OrderId: common.OrderId(s.lastIncSeqNum),
	})

	s.snapshotsPublished.Add(1)
	s.logger.Info("published snapshot",
		zap.Uint64("through_seq_num", s.lastIncSeqNum),
		zap.Uint64("records", snapshotSeq))
}
