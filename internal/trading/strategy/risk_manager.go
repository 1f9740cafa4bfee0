package strategy

import (
	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/trading/engine"
)

// RiskCheckResult is the outcome of a pre-trade risk check.
type RiskCheckResult uint8

const (
	RiskInvalid RiskCheckResult = iota
	RiskOrderTooLarge
	RiskPositionTooLarge
	RiskLossTooLarge
	RiskAllowed
)

func (r RiskCheckResult) String() string {
	switch r {
	case RiskOrderTooLarge:
		return "ORDER_TOO_LARGE"
	case RiskPositionTooLarge:
		return "POSITION_TOO_LARGE"
	case RiskLossTooLarge:
		return "LOSS_TOO_LARGE"
	case RiskAllowed:
		return "ALLOWED"
	}
	return "INVALID"
}

// RiskManager checks prospective orders against per-ticker limits and
// the live position.
type RiskManager struct {
	logger         *zap.Logger
	positionKeeper *engine.PositionKeeper
	cfgs           [common.MaxTickers]common.RiskCfg
}

func NewRiskManager(positionKeeper *engine.PositionKeeper, cfgs [common.MaxTickers]common.TradeEngineCfg, logger *zap.Logger) *RiskManager {
	rm := &RiskManager{
		logger:         logger,
		positionKeeper: positionKeeper,
	}
	for tickerId := range cfgs {
		rm.cfgs[tickerId] = cfgs[tickerId].Risk
	}
	return rm
}

// CheckPreTradeRisk validates a prospective order: size first, then
// the position it would build, then the accumulated loss.
func (rm *RiskManager) CheckPreTradeRisk(tickerId common.TickerId, side common.Side, qty common.Qty) RiskCheckResult {
	cfg := rm.cfgs[tickerId]
	position := rm.positionKeeper.Position(tickerId)

	if qty > cfg.MaxOrderSize {
		return RiskOrderTooLarge
	}
	if abs(position.Position+int64(side.Value())*int64(qty)) > int64(cfg.MaxPosition) {
		return RiskPositionTooLarge
	}
	if position.TotalPnl < cfg.MaxLoss {
		return RiskLossTooLarge
	}
	return RiskAllowed
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
