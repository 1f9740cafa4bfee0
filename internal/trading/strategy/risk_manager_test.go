package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/trading/engine"
	"github.com/tradewire/tradewire/internal/wire"
)

func newTestRM(t *testing.T) (*RiskManager, *engine.PositionKeeper) {
	t.Helper()
	pk := engine.NewPositionKeeper(zap.NewNop())
	rm := NewRiskManager(pk, testCfgs(10, 50), zap.NewNop())
	return rm, pk
}

func TestRiskAllowsWithinLimits(t *testing.T) {
	rm, _ := newTestRM(t)
	assert.Equal(t, RiskAllowed, rm.CheckPreTradeRisk(0, common.SideBuy, 10))
}

func TestRiskRejectsOversizedOrder(t *testing.T) {
	rm, _ := newTestRM(t)
	assert.Equal(t, RiskOrderTooLarge, rm.CheckPreTradeRisk(0, common.SideBuy, 101))
}

func TestRiskRejectsPositionBreach(t *testing.T) {
	rm, pk := newTestRM(t)

	for i := 0; i < 5; i++ {
		pk.AddFill(&wire.ClientResponse{
			Type: wire.ResponseFilled, TickerId: 0,
			Side: common.SideBuy, Price: 100, ExecQty: 9,
		})
	}
	// position 45, max 50: another 9 breaches, 5 does not
	assert.Equal(t, RiskPositionTooLarge, rm.CheckPreTradeRisk(0, common.SideBuy, 9))
	assert.Equal(t, RiskAllowed, rm.CheckPreTradeRisk(0, common.SideBuy, 5))

	// selling reduces exposure and stays allowed
	assert.Equal(t, RiskAllowed, rm.CheckPreTradeRisk(0, common.SideSell, 9))
}

func TestRiskRejectsShortPositionBreach(t *testing.T) {
	rm, pk := newTestRM(t)

	pk.AddFill(&wire.ClientResponse{
		Type: wire.ResponseFilled, TickerId: 0,
		Side: common.SideSell, Price: 100, ExecQty: 45,
	})
	assert.Equal(t, RiskPositionTooLarge, rm.CheckPreTradeRisk(0, common.SideSell, 9))
}

func TestRiskRejectsAfterMaxLoss(t *testing.T) {
	rm, pk := newTestRM(t)

	// buy 10 at 100, marked 200 lower: -2000 < -1000 limit
	pk.AddFill(&wire.ClientResponse{
		Type: wire.ResponseFilled, TickerId: 0,
		Side: common.SideBuy, Price: 300, ExecQty: 10,
	})
	pk.UpdateBBO(0, &engine.BBO{BidPrice: 99, AskPrice: 101, BidQty: 1, AskQty: 1})

	assert.Equal(t, RiskLossTooLarge, rm.CheckPreTradeRisk(0, common.SideBuy, 1))
}

func TestRiskChecksSizeBeforePositionBeforeLoss(t *testing.T) {
	rm, pk := newTestRM(t)

	pk.AddFill(&wire.ClientResponse{
		Type: wire.ResponseFilled, TickerId: 0,
		Side: common.SideBuy, Price: 300, ExecQty: 50,
	})
	pk.UpdateBBO(0, &engine.BBO{BidPrice: 99, AskPrice: 101, BidQty: 1, AskQty: 1})

	// all three limits breached: size reported first, then position
	assert.Equal(t, RiskOrderTooLarge, rm.CheckPreTradeRisk(0, common.SideBuy, 101))
	assert.Equal(t, RiskPositionTooLarge, rm.CheckPreTradeRisk(0, common.SideBuy, 10))
	assert.Equal(t, RiskLossTooLarge, rm.CheckPreTradeRisk(0, common.SideSell, 10))
}
