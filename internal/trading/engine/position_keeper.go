package engine

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// PositionInfo tracks one ticker's signed position, open VWAP per
// side, and realized/unrealized PnL.
type PositionInfo struct {
	Position  int64
	RealPnl   float64
	UnrealPnl float64
	TotalPnl  float64
	Volume    int64

	// price*qty accumulators for the open position, indexed by
	// Side.Index()
	openVWAP [2]float64

	bbo BBO
}

func (p *PositionInfo) String() string {
	return fmt.Sprintf("Position[pos:%d vol:%d real:%.2f unreal:%.2f total:%.2f]",
		p.Position, p.Volume, p.RealPnl, p.UnrealPnl, p.TotalPnl)
}

// addFill folds one execution into the position. Fills that extend
// the position accumulate open VWAP; fills that reduce it realize
// PnL against the opposite side's VWAP; a flip through flat re-opens
// at the fill price.
func (p *PositionInfo) addFill(response *wire.ClientResponse) {
	oldPosition := p.Position
	sideIndex := response.Side.Index()
	oppSideIndex := 1 - sideIndex
	sideValue := int64(response.Side.Value())
	execQty := int64(response.ExecQty)

	p.Position += execQty * sideValue
	p.Volume += execQty

	if oldPosition*sideValue >= 0 {
		p.openVWAP[sideIndex] += float64(response.Price) * float64(execQty)
	} else {
		oppSideVWAP := p.openVWAP[oppSideIndex] / float64(abs(oldPosition))
		p.openVWAP[oppSideIndex] = oppSideVWAP * float64(abs(p.Position))
		p.RealPnl += float64(min(execQty, abs(oldPosition))) *
			(oppSideVWAP - float64(response.Price)) * float64(sideValue)
		if p.Position*oldPosition < 0 {
			p.openVWAP[sideIndex] = float64(response.Price) * float64(abs(p.Position))
			p.openVWAP[oppSideIndex] = 0
		}
	}

	if p.Position == 0 {
		p.openVWAP[0], p.openVWAP[1] = 0, 0
		p.UnrealPnl = 0
	} else if p.Position > 0 {
		p.UnrealPnl = (float64(response.Price) - p.openVWAP[common.SideBuy.Index()]/float64(p.Position)) *
			float64(p.Position)
	} else {
		p.UnrealPnl = (p.openVWAP[common.SideSell.Index()]/float64(abs(p.Position)) - float64(response.Price)) *
			float64(abs(p.Position))
	}

	p.TotalPnl = p.RealPnl + p.UnrealPnl
}

// updateBBO remarks the open position's unrealized PnL to the mid
// price.
func (p *PositionInfo) updateBBO(bbo *BBO) {
	p.bbo = *bbo
	if p.Position == 0 || !bbo.Valid() {
		return
	}

	midPrice := (float64(bbo.BidPrice) + float64(bbo.AskPrice)) * 0.5
	if p.Position > 0 {
		p.UnrealPnl = (midPrice - p.openVWAP[common.SideBuy.Index()]/float64(p.Position)) *
			float64(p.Position)
	} else {
		p.UnrealPnl = (p.openVWAP[common.SideSell.Index()]/float64(abs(p.Position)) - midPrice) *
			float64(abs(p.Position))
	}
	p.TotalPnl = p.RealPnl + p.UnrealPnl
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// PositionKeeper holds one PositionInfo per ticker.
type PositionKeeper struct {
	logger    *zap.Logger
	positions [common.MaxTickers]PositionInfo
}

func NewPositionKeeper(logger *zap.Logger) *PositionKeeper {
	return &PositionKeeper{logger: logger}
}

// AddFill applies one FILLED response.
func (k *PositionKeeper) AddFill(response *wire.ClientResponse) {
	k.positions[response.TickerId].addFill(response)
	k.logger.Debug("position updated",
		zap.Uint32("ticker_id", uint32(response.TickerId)),
		zap.String("position", k.positions[response.TickerId].String()))
}

// UpdateBBO remarks a ticker's unrealized PnL.
func (k *PositionKeeper) UpdateBBO(tickerId common.TickerId, bbo *BBO) {
	k.positions[tickerId].updateBBO(bbo)
}

// Position returns the ticker's position record.
func (k *PositionKeeper) Position(tickerId common.TickerId) *PositionInfo {
	return &k.positions[tickerId]
}

// String renders the per-ticker summary used in the final report.
func (k *PositionKeeper) String() string {
	var sb strings.Builder
	for tickerId := range k.positions {
		p := &k.positions[tickerId]
		if p.Volume == 0 {
			continue
		}
		fmt.Fprintf(&sb, "Ticker:%d %s\n", tickerId, p.String())
	}
	if sb.Len() == 0 {
		return "no positions\n"
	}
	return sb.String()
}
