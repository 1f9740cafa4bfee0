// Package marketdata consumes the exchange's multicast feeds on the
// trading side, recovering through the snapshot stream when the
// incremental stream gaps.
package marketdata

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// Consumer reads the incremental feed and hands decoded updates to
// the trade engine in sequence. On a sequence gap it joins the
// snapshot feed, rebuilds from the next complete cycle, replays the
// buffered incrementals past the cycle's anchor, and drops back to
// streaming. All state is owned by the single receive loop.
type Consumer struct {
	logger *zap.Logger

	incrementalGroup string
	snapshotGroup    string

	updates *common.Producer[wire.MarketUpdate]

	incrementalConn *net.UDPConn
	snapshotConn    *net.UDPConn

	nextExpIncSeqNum uint64
	inRecovery       bool

	// buffered datagrams during recovery, keyed by sequence number
	queuedIncrementals map[uint64]wire.MarketUpdate
	queuedSnapshot     map[uint64]wire.MarketUpdate

	running atomic.Bool
	done    <-chan struct{}

	updatesDelivered atomic.Uint64
	recoveries       atomic.Uint64
}

// NewConsumer builds a consumer for the two feed groups, delivering
// into the trade engine's update queue.
func NewConsumer(incrementalGroup, snapshotGroup string, updates *common.Producer[wire.MarketUpdate], logger *zap.Logger) *Consumer {
	return &Consumer{
		logger:             logger,
		incrementalGroup:   incrementalGroup,
		snapshotGroup:      snapshotGroup,
		updates:            updates,
		nextExpIncSeqNum:   1,
		queuedIncrementals: make(map[uint64]wire.MarketUpdate),
		queuedSnapshot:     make(map[uint64]wire.MarketUpdate),
	}
}

// Start joins the incremental group and launches the receive loop on
// its own OS thread.
func (c *Consumer) Start() error {
	conn, err := joinMulticast(c.incrementalGroup)
	if err != nil {
		return fmt.Errorf("joining incremental group: %w", err)
	}
	c.incrementalConn = conn

	c.running.Store(true)
	c.done = common.StartThread("md-consumer", c.run)
	c.logger.Info("market data consumer started",
		zap.String("incremental_group", c.incrementalGroup),
		zap.String("snapshot_group", c.snapshotGroup))
	return nil
}

// Stop asks the receive loop to exit and waits for it.
func (c *Consumer) Stop() {
	c.running.Store(false)
	if c.done != nil {
		<-c.done
	}
	c.incrementalConn.Close()
	if c.snapshotConn != nil {
		c.snapshotConn.Close()
	}
	c.logger.Info("market data consumer stopped",
		zap.Uint64("updates_delivered", c.updatesDelivered.Load()),
		zap.Uint64("recoveries", c.recoveries.Load()))
}

func joinMulticast(group string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", group)
	if err != nil {
		return nil, fmt.Errorf("resolving group %q: %w", group, err)
	}
	conn, err := net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("listening on group %q: %w", group, err)
	}
	conn.SetReadBuffer(4 * 1024 * 1024)
	return conn, nil
}

func (c *Consumer) run() {
	var buf [wire.SeqMarketUpdateSize]byte
	for c.running.Load() {
		c.poll(c.incrementalConn, buf[:], c.processIncremental)
		if c.snapshotConn != nil {
			c.poll(c.snapshotConn, buf[:], c.processSnapshot)
		}
	}
}

// poll reads one datagram with a short deadline so the loop keeps
// servicing both sockets and the running flag.
func (c *Consumer) poll(conn *net.UDPConn, buf []byte, process func(wire.SeqMarketUpdate)) bool {
	conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		if !errors.Is(err, os.ErrDeadlineExceeded) && !errors.Is(err, net.ErrClosed) && c.running.Load() {
			c.logger.Error("feed read failed", zap.Error(err))
		}
		return false
	}
	if n < wire.SeqMarketUpdateSize {
		c.logger.Warn("short feed datagram, dropping", zap.Int("bytes", n))
		return false
	}
	process(wire.DecodeSeqMarketUpdate(buf))
	return true
}

// processIncremental handles one incremental datagram. In-sequence
// updates stream straight through; a gap starts snapshot recovery;
// during recovery everything is buffered for replay.
func (c *Consumer) processIncremental(su wire.SeqMarketUpdate) {
	if !c.inRecovery {
		if su.SeqNum == c.nextExpIncSeqNum {
			c.deliver(su.Update)
			c.nextExpIncSeqNum++
			return
		}
		if su.SeqNum < c.nextExpIncSeqNum {
			c.logger.Fatal("duplicate incremental sequence number",
				zap.Uint64("expected", c.nextExpIncSeqNum), zap.Uint64("got", su.SeqNum))
		}
		c.logger.Warn("incremental sequence gap, starting snapshot recovery",
			zap.Uint64("expected", c.nextExpIncSeqNum), zap.Uint64("got", su.SeqNum))
		c.startRecovery()
	}
	c.queuedIncrementals[su.SeqNum] = su.Update
	c.tryFinishRecovery()
}

// processSnapshot buffers one snapshot datagram and attempts to
// finish recovery. A SNAPSHOT_START discards any partial cycle.
func (c *Consumer) processSnapshot(su wire.SeqMarketUpdate) {
	if !c.inRecovery {
		return
	}
	if su.Update.Type == wire.UpdateSnapshotStart {
		clear(c.queuedSnapshot)
	}
	c.queuedSnapshot[su.SeqNum] = su.Update
	c.tryFinishRecovery()
}

func (c *Consumer) startRecovery() {
	c.inRecovery = true
	c.recoveries.Add(1)
	clear(c.queuedIncrementals)
	clear(c.queuedSnapshot)

	if c.snapshotConn == nil && c.snapshotGroup != "" {
		conn, err := joinMulticast(c.snapshotGroup)
		if err != nil {
			c.logger.Error("joining snapshot group failed", zap.Error(err))
			return
		}
		c.snapshotConn = conn
	}
}

// tryFinishRecovery checks whether the buffered snapshot cycle is
// complete and the buffered incrementals continue seamlessly past its
// anchor; if so it replays both and resumes streaming.
func (c *Consumer) tryFinishRecovery() {
	start, ok := c.queuedSnapshot[0]
	if !ok || start.Type != wire.UpdateSnapshotStart {
		return
	}

	// the cycle must be contiguous from 0 through SNAPSHOT_END
	var endSeq uint64
	for seq := uint64(0); ; seq++ {
		update, ok := c.queuedSnapshot[seq]
		if !ok {
			return
		}
		if update.Type == wire.UpdateSnapshotEnd {
			if update.OrderId != start.OrderId {
				// cycle spliced from two publishers' runs
				clear(c.queuedSnapshot)
				return
			}
			endSeq = seq
			break
		}
	}

	anchor := uint64(start.OrderId)

	// buffered incrementals must continue from the anchor without a
	// hole up to their highest sequence number
	var maxQueued uint64
	for seq := range c.queuedIncrementals {
		if seq > maxQueued {
			maxQueued = seq
		}
	}
	if maxQueued > anchor {
		for seq := anchor + 1; seq <= maxQueued; seq++ {
			if _, ok := c.queuedIncrementals[seq]; !ok {
				return
			}
		}
	}

	for seq := uint64(1); seq < endSeq; seq++ {
		update := c.queuedSnapshot[seq]
		c.deliver(update)
	}
	for seq := anchor + 1; seq <= maxQueued; seq++ {
		c.deliver(c.queuedIncrementals[seq])
	}
	c.nextExpIncSeqNum = max(anchor, maxQueued) + 1

	clear(c.queuedIncrementals)
	clear(c.queuedSnapshot)
	c.inRecovery = false
	if c.snapshotConn != nil {
		c.snapshotConn.Close()
		c.snapshotConn = nil
	}

	c.logger.Info("snapshot recovery complete",
		zap.Uint64("anchor", anchor),
		zap.Uint64("next_seq_num", c.nextExpIncSeqNum))
}

func (c *Consumer) deliver(update wire.MarketUpdate) {
	c.updates.Write(update)
	c.updatesDelivered.Add(1)
}
