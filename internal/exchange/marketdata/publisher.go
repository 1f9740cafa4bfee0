package marketdata

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// Publisher drains raw market updates from the matching engine,
// stamps each with the next incremental sequence number, sends it on
// the incremental feed, and forwards the sequenced copy to the
// snapshot synthesizer. It is the only writer of incremental sequence
// numbers, which start at 1.
type Publisher struct {
	logger *zap.Logger

	updates     *common.Consumer[wire.MarketUpdate]
	incremental Sender
	snapshots   *common.Producer[wire.SeqMarketUpdate]

	nextSeqNum uint64

	running atomic.Bool
	done    <-chan struct{}

	published atomic.Uint64
}

// NewPublisher wires the publisher between the matching engine's
// update queue, the incremental feed, and the synthesizer's queue.
func NewPublisher(
	updates *common.Consumer[wire.MarketUpdate],
	incremental Sender,
	snapshots *common.Producer[wire.SeqMarketUpdate],
	logger *zap.Logger,
) *Publisher {
	return &Publisher{
		logger:      logger,
		updates:     updates,
		incremental: incremental,
		snapshots:   snapshots,
		nextSeqNum:  1,
	}
}

// Start launches the publisher loop on its own OS thread.
func (p *Publisher) Start() {
	p.running.Store(true)
	p.done = common.StartThread("md-publisher", p.run)
	p.logger.Info("market data publisher started")
}

// Stop asks the loop to exit and waits for it.
func (p *Publisher) Stop() {
	p.running.Store(false)
	if p.done != nil {
		<-p.done
	}
	p.logger.Info("market data publisher stopped",
		zap.Uint64("updates_published", p.published.Load()))
}

func (p *Publisher) run() {
	var buf [wire.SeqMarketUpdateSize]byte
	for p.running.Load() {
		update := p.updates.Peek()
		if update == nil {
			runtime.Gosched()
			continue
		}

		seqUpdate := wire.SeqMarketUpdate{SeqNum: p.nextSeqNum, Update: *update}
		p.updates.CommitRead()

		seqUpdate.Encode(buf[:])
		if err := p.incremental.Send(buf[:]); err != nil {
			p.logger.Error("incremental feed send failed",
				zap.Uint64("seq_num", seqUpdate.SeqNum), zap.Error(err))
		}
		p.snapshots.Write(seqUpdate)

		p.nextSeqNum++
		p.published.Add(1)
	}
}
