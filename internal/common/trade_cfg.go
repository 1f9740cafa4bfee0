package common

import "fmt"

// RiskCfg bounds one ticker's trading activity.
type RiskCfg struct {
	MaxOrderSize Qty
	MaxPosition  Qty
	MaxLoss      float64
}

func (c RiskCfg) String() string {
	return fmt.Sprintf("RiskCfg[max-order-size:%v max-position:%v max-loss:%.2f]",
		c.MaxOrderSize, c.MaxPosition, c.MaxLoss)
}

// TradeEngineCfg is one ticker's strategy parameters: the order size
// to quote or take, the feature threshold that gates the algo, and
// the risk limits.
type TradeEngineCfg struct {
	Clip      Qty
	Threshold float64
	Risk      RiskCfg
}

func (c TradeEngineCfg) String() string {
	return fmt.Sprintf("TradeEngineCfg[clip:%v threshold:%.2f %v]",
		c.Clip, c.Threshold, c.Risk)
}
