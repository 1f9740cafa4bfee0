package orderserver

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

func TestFIFOSequencerOrdersByReceiveTime(t *testing.T) {
	prod, cons := common.NewSPSC[wire.ClientRequest](64)
	seq := newFIFOSequencer(prod)

	seq.push(recvRequest{RecvTime: 300, Request: wire.ClientRequest{OrderId: 3}})
	seq.push(recvRequest{RecvTime: 100, Request: wire.ClientRequest{OrderId: 1}})
	seq.push(recvRequest{RecvTime: 200, Request: wire.ClientRequest{OrderId: 2}})
	seq.flush()

	for want := common.OrderId(1); want <= 3; want++ {
		req, ok := cons.Read()
		require.True(t, ok)
		assert.Equal(t, want, req.OrderId)
	}
	_, ok := cons.Read()
	assert.False(t, ok)
}

func TestFIFOSequencerStableOnEqualTimes(t *testing.T) {
	prod, cons := common.NewSPSC[wire.ClientRequest](64)
	seq := newFIFOSequencer(prod)

	seq.push(recvRequest{RecvTime: 100, Request: wire.ClientRequest{OrderId: 1}})
	seq.push(recvRequest{RecvTime: 100, Request: wire.ClientRequest{OrderId: 2}})
	seq.flush()

	first, _ := cons.Read()
	second, _ := cons.Read()
	assert.Equal(t, common.OrderId(1), first.OrderId)
	assert.Equal(t, common.OrderId(2), second.OrderId)
}

// testClient speaks the framed order protocol against a server.
type testClient struct {
	conn       net.Conn
	nextOutSeq uint64
	nextInSeq  uint64
}

func dialTestClient(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, nextOutSeq: 1, nextInSeq: 1}
}

func (c *testClient) send(t *testing.T, req wire.ClientRequest) {
	t.Helper()
	c.sendSeq(t, c.nextOutSeq, req)
	c.nextOutSeq++
}

func (c *testClient) sendSeq(t *testing.T, seqNum uint64, req wire.ClientRequest) {
	t.Helper()
	var buf [wire.OMClientRequestSize]byte
	wire.EncodeSeqNum(buf[:], seqNum)
	req.Encode(buf[8:])
	_, err := c.conn.Write(buf[:])
	require.NoError(t, err)
}

func (c *testClient) recv(t *testing.T) wire.ClientResponse {
	t.Helper()
	var buf [wire.OMClientResponseSize]byte
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(c.conn, buf[:])
	require.NoError(t, err)
	require.Equal(t, c.nextInSeq, wire.DecodeSeqNum(buf[:]))
	c.nextInSeq++
	return wire.DecodeClientResponse(buf[8:])
}

func startTestServer(t *testing.T, dropCopy *common.Producer[wire.ClientResponse]) (*Server, *common.Consumer[wire.ClientRequest], *common.Producer[wire.ClientResponse]) {
	t.Helper()
	reqProd, reqCons := common.NewSPSC[wire.ClientRequest](1024)
	respProd, respCons := common.NewSPSC[wire.ClientResponse](1024)

	srv := NewServer("127.0.0.1:0", reqProd, respCons, dropCopy, zap.NewNop())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv, reqCons, respProd
}

func readRequest(t *testing.T, cons *common.Consumer[wire.ClientRequest]) wire.ClientRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if req, ok := cons.Read(); ok {
			return req
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for request")
	return wire.ClientRequest{}
}

func TestServerRoundTrip(t *testing.T) {
	srv, reqCons, respProd := startTestServer(t, nil)
	client := dialTestClient(t, srv.Addr())

	sent := wire.ClientRequest{
		Type: wire.RequestNew, ClientId: 7, TickerId: 1, OrderId: 42,
		Side: common.SideBuy, Price: 99, Qty: 10,
	}
	client.send(t, sent)

	got := readRequest(t, reqCons)
	assert.Equal(t, sent, got)

	respProd.Write(wire.ClientResponse{
		Type: wire.ResponseAccepted, ClientId: 7, TickerId: 1,
		ClientOrderId: 42, MarketOrderId: 1, Side: common.SideBuy,
		Price: 99, ExecQty: 0, LeavesQty: 10,
	})

	resp := client.recv(t)
	assert.Equal(t, wire.ResponseAccepted, resp.Type)
	assert.Equal(t, common.OrderId(42), resp.ClientOrderId)
}

func TestServerStampsOutboundSequence(t *testing.T) {
	srv, reqCons, respProd := startTestServer(t, nil)
	client := dialTestClient(t, srv.Addr())

	client.send(t, wire.ClientRequest{Type: wire.RequestNew, ClientId: 3, OrderId: 1, Side: common.SideBuy, Price: 1, Qty: 1})
	readRequest(t, reqCons)

	for i := 0; i < 3; i++ {
		respProd.Write(wire.ClientResponse{Type: wire.ResponseAccepted, ClientId: 3, ClientOrderId: common.OrderId(i)})
	}
	// recv asserts 1, 2, 3 in order
	for i := 0; i < 3; i++ {
		resp := client.recv(t)
		assert.Equal(t, common.OrderId(i), resp.ClientOrderId)
	}
}

func TestServerDropsConnectionOnSequenceGap(t *testing.T) {
	srv, reqCons, _ := startTestServer(t, nil)
	client := dialTestClient(t, srv.Addr())

	client.send(t, wire.ClientRequest{Type: wire.RequestNew, ClientId: 5, OrderId: 1, Side: common.SideBuy, Price: 1, Qty: 1})
	readRequest(t, reqCons)

	// skip a sequence number; the server must close the connection
	client.sendSeq(t, 99, wire.ClientRequest{Type: wire.RequestNew, ClientId: 5, OrderId: 2, Side: common.SideBuy, Price: 1, Qty: 1})

	var buf [1]byte
	client.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := client.conn.Read(buf[:])
	assert.Error(t, err)
}

func TestServerRejectsSecondSessionForClient(t *testing.T) {
	srv, reqCons, _ := startTestServer(t, nil)

	first := dialTestClient(t, srv.Addr())
	first.send(t, wire.ClientRequest{Type: wire.RequestNew, ClientId: 9, OrderId: 1, Side: common.SideBuy, Price: 1, Qty: 1})
	readRequest(t, reqCons)

	second := dialTestClient(t, srv.Addr())
	second.sendSeq(t, 1, wire.ClientRequest{Type: wire.RequestNew, ClientId: 9, OrderId: 2, Side: common.SideBuy, Price: 1, Qty: 1})

	var buf [1]byte
	second.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := second.conn.Read(buf[:])
	assert.Error(t, err)
}

func TestServerMirrorsResponsesToDropCopy(t *testing.T) {
	dcProd, dcCons := common.NewSPSC[wire.ClientResponse](64)
	srv, reqCons, respProd := startTestServer(t, dcProd)
	client := dialTestClient(t, srv.Addr())

	client.send(t, wire.ClientRequest{Type: wire.RequestNew, ClientId: 2, OrderId: 7, Side: common.SideSell, Price: 5, Qty: 3})
	readRequest(t, reqCons)

	respProd.Write(wire.ClientResponse{Type: wire.ResponseAccepted, ClientId: 2, ClientOrderId: 7, LeavesQty: 3})
	client.recv(t)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mirrored, ok := dcCons.Read(); ok {
			assert.Equal(t, wire.ResponseAccepted, mirrored.Type)
			assert.Equal(t, common.ClientId(2), mirrored.ClientId)
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for drop-copy mirror")
}
