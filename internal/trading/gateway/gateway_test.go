package gateway

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// fakeExchange accepts one gateway connection and speaks the framed
// protocol from the server side.
type fakeExchange struct {
	listener net.Listener
	connCh   chan net.Conn
}

func newFakeExchange(t *testing.T) *fakeExchange {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	fe := &fakeExchange{listener: listener, connCh: make(chan net.Conn, 1)}
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			fe.connCh <- conn
		}
	}()
	return fe
}

func (fe *fakeExchange) conn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-fe.connCh:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("gateway never connected")
		return nil
	}
}

func (fe *fakeExchange) readRequest(t *testing.T, conn net.Conn) (uint64, wire.ClientRequest) {
	t.Helper()
	var buf [wire.OMClientRequestSize]byte
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(conn, buf[:])
	require.NoError(t, err)
	return wire.DecodeSeqNum(buf[:]), wire.DecodeClientRequest(buf[8:])
}

func (fe *fakeExchange) writeResponse(t *testing.T, conn net.Conn, seqNum uint64, resp wire.ClientResponse) {
	t.Helper()
	var buf [wire.OMClientResponseSize]byte
	wire.EncodeSeqNum(buf[:], seqNum)
	resp.Encode(buf[8:])
	_, err := conn.Write(buf[:])
	require.NoError(t, err)
}

func TestGatewayRoundTrip(t *testing.T) {
	fe := newFakeExchange(t)

	reqProd, reqCons := common.NewSPSC[wire.ClientRequest](64)
	respProd, respCons := common.NewSPSC[wire.ClientResponse](64)

	gw := NewGateway(7, fe.listener.Addr().String(), reqCons, respProd, zap.NewNop())
	require.NoError(t, gw.Start())
	defer gw.Stop()

	conn := fe.conn(t)

	sent := wire.ClientRequest{
		Type: wire.RequestNew, ClientId: 7, TickerId: 0, OrderId: 1,
		Side: common.SideBuy, Price: 99, Qty: 10,
	}
	reqProd.Write(sent)

	seqNum, got := fe.readRequest(t, conn)
	assert.Equal(t, uint64(1), seqNum)
	assert.Equal(t, sent, got)

	// second request advances the outbound sequence
	reqProd.Write(sent)
	seqNum, _ = fe.readRequest(t, conn)
	assert.Equal(t, uint64(2), seqNum)

	fe.writeResponse(t, conn, 1, wire.ClientResponse{
		Type: wire.ResponseAccepted, ClientId: 7, TickerId: 0,
		ClientOrderId: 1, MarketOrderId: 1, Side: common.SideBuy,
		Price: 99, LeavesQty: 10,
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if resp, ok := respCons.Read(); ok {
			assert.Equal(t, wire.ResponseAccepted, resp.Type)
			assert.Equal(t, common.OrderId(1), resp.ClientOrderId)
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for response")
}
