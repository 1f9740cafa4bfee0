// Package gateway maintains the trading client's TCP order
// connection: framed requests out, framed responses in, sequence
// numbers validated both ways.
package gateway

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// Gateway bridges the trade engine's request and response queues to
// the exchange's order server. The send loop is the sole consumer of
// the request queue; the read loop is the sole producer into the
// response queue.
type Gateway struct {
	logger   *zap.Logger
	clientId common.ClientId
	addr     string

	requests  *common.Consumer[wire.ClientRequest]
	responses *common.Producer[wire.ClientResponse]

	conn net.Conn

	nextOutSeqNum uint64
	nextExpSeqNum uint64

	running  atomic.Bool
	sendDone <-chan struct{}
	readDone chan struct{}

	requestsSent atomic.Uint64
	responsesIn  atomic.Uint64
}

// NewGateway wires the gateway between the trade engine's queues and
// the order server address.
func NewGateway(
	clientId common.ClientId,
	addr string,
	requests *common.Consumer[wire.ClientRequest],
	responses *common.Producer[wire.ClientResponse],
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		logger:        logger,
		clientId:      clientId,
		addr:          addr,
		requests:      requests,
		responses:     responses,
		nextOutSeqNum: 1,
		nextExpSeqNum: 1,
	}
}

// Start connects to the order server and launches the send and read
// loops.
func (g *Gateway) Start() error {
	conn, err := net.Dial("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("dialing order server %s: %w", g.addr, err)
	}
	g.conn = conn
	g.running.Store(true)

	g.sendDone = common.StartThread("gateway-send", g.sendLoop)
	g.readDone = make(chan struct{})
	go g.readLoop()

	g.logger.Info("order gateway connected",
		zap.Uint32("client_id", uint32(g.clientId)),
		zap.String("addr", g.addr))
	return nil
}

// Stop closes the connection and waits for both loops.
func (g *Gateway) Stop() {
	g.running.Store(false)
	if g.conn != nil {
		g.conn.Close()
	}
	if g.sendDone != nil {
		<-g.sendDone
	}
	if g.readDone != nil {
		<-g.readDone
	}
	g.logger.Info("order gateway stopped",
		zap.Uint64("requests_sent", g.requestsSent.Load()),
		zap.Uint64("responses_in", g.responsesIn.Load()))
}

func (g *Gateway) sendLoop() {
	var buf [wire.OMClientRequestSize]byte
	for g.running.Load() {
		req := g.requests.Peek()
		if req == nil {
			runtime.Gosched()
			continue
		}

		wire.EncodeSeqNum(buf[:], g.nextOutSeqNum)
		req.Encode(buf[8:])
		if _, err := g.conn.Write(buf[:]); err != nil {
			if g.running.Load() {
				g.logger.Error("request send failed", zap.Error(err))
			}
			return
		}
		g.nextOutSeqNum++
		g.requestsSent.Add(1)
		g.requests.CommitRead()
	}
}

func (g *Gateway) readLoop() {
	defer close(g.readDone)

	var buf [wire.OMClientResponseSize]byte
	for g.running.Load() {
		if _, err := io.ReadFull(g.conn, buf[:]); err != nil {
			if g.running.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				g.logger.Error("response read failed", zap.Error(err))
			}
			return
		}

		seqNum := wire.DecodeSeqNum(buf[:])
		resp := wire.DecodeClientResponse(buf[8:])

		if seqNum != g.nextExpSeqNum {
			g.logger.Fatal("response sequence mismatch",
				zap.Uint64("expected", g.nextExpSeqNum), zap.Uint64("got", seqNum))
		}
		if resp.ClientId != g.clientId {
			g.logger.Fatal("response for wrong client",
				zap.Uint32("client_id", uint32(g.clientId)),
				zap.String("response", resp.String()))
		}
		g.nextExpSeqNum++

		g.responses.Write(resp)
		g.responsesIn.Add(1)
	}
}
