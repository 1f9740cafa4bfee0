package dropcopy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestNewEventCarriesResponseFields(t *testing.T) {
	resp := wire.ClientResponse{
		Type: wire.ResponseFilled, ClientId: 3, TickerId: 1,
		ClientOrderId: 42, MarketOrderId: 7, Side: common.SideSell,
		Price: 101, ExecQty: 4, LeavesQty: 6,
	}

	event := NewEvent(resp, 12345)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "FILLED", event.Type)
	assert.Equal(t, "SELL", event.Side)
	assert.Equal(t, uint32(3), event.ClientID)
	assert.Equal(t, uint64(42), event.ClientOrderID)
	assert.Equal(t, int64(101), event.Price)
	assert.Equal(t, uint32(4), event.ExecQty)
	assert.Equal(t, int64(12345), event.TsUnixNanos)

	// ids are unique per event
	other := NewEvent(resp, 12345)
	assert.NotEqual(t, event.EventID, other.EventID)
}

func TestLedgerInsertIsIdempotent(t *testing.T) {
	ledger := openTestLedger(t)
	ctx := context.Background()

	event := NewEvent(wire.ClientResponse{Type: wire.ResponseAccepted, ClientId: 1}, 1)

	dup, err := ledger.Insert(ctx, event)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = ledger.Insert(ctx, event)
	require.NoError(t, err)
	assert.True(t, dup)

	report, err := ledger.BuildReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Events)
}

func TestLedgerReport(t *testing.T) {
	ledger := openTestLedger(t)
	ctx := context.Background()

	insert := func(resp wire.ClientResponse) {
		_, err := ledger.Insert(ctx, NewEvent(resp, common.NowNanos()))
		require.NoError(t, err)
	}

	// client 1 sells 10 to client 2 on ticker 0
	insert(wire.ClientResponse{Type: wire.ResponseAccepted, ClientId: 1, TickerId: 0})
	insert(wire.ClientResponse{Type: wire.ResponseAccepted, ClientId: 2, TickerId: 0})
	insert(wire.ClientResponse{Type: wire.ResponseFilled, ClientId: 1, TickerId: 0, ExecQty: 10})
	insert(wire.ClientResponse{Type: wire.ResponseFilled, ClientId: 2, TickerId: 0, ExecQty: 10})
	insert(wire.ClientResponse{Type: wire.ResponseCanceled, ClientId: 1, TickerId: 1})
	insert(wire.ClientResponse{Type: wire.ResponseCancelRejected, ClientId: 2, TickerId: 1})

	report, err := ledger.BuildReport(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(6), report.Events)
	require.Len(t, report.Clients, 2)

	c1 := report.Clients[0]
	assert.Equal(t, uint32(1), c1.ClientID)
	assert.Equal(t, int64(1), c1.Accepted)
	assert.Equal(t, int64(1), c1.Canceled)
	assert.Equal(t, int64(1), c1.Filled)
	assert.Equal(t, int64(10), c1.ExecTotal)

	c2 := report.Clients[1]
	assert.Equal(t, int64(1), c2.Rejected)

	// both counterparties' fills count once toward traded volume
	require.Len(t, report.Volumes, 2)
	assert.Equal(t, uint32(0), report.Volumes[0].TickerID)
	assert.Equal(t, int64(10), report.Volumes[0].TradedQty)
	assert.Equal(t, int64(0), report.Volumes[1].TradedQty)
}
