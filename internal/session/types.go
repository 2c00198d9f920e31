package session

import (
	"time"

	"trade-journal/internal/exchange"
)

// PositionSide 表示会话方向，创建后不再改变。
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Status 表示会话状态，closed 在单次计算内为终态。
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// satoshiPerUnit 将手续费最小单位换算回主货币单位。
const satoshiPerUnit = 1e8

// Session 表示一段连续持有非零净仓位的区间及其结算结果。
type Session struct {
	ID            string               `json:"id"`
	Symbol        string               `json:"symbol"`
	Side          PositionSide         `json:"side"`
	OpenedAt      time.Time            `json:"opened_at"`
	ClosedAt      time.Time            `json:"closed_at,omitempty"`
	Duration      time.Duration        `json:"duration"`
	MaxSize       float64              `json:"max_size"`
	TotalBought   float64              `json:"total_bought"`
	TotalSold     float64              `json:"total_sold"`
	AvgEntryPrice float64              `json:"avg_entry_price"`
	AvgExitPrice  float64              `json:"avg_exit_price"`
	RealizedPnl   float64              `json:"realized_pnl"`
	TotalFees     float64              `json:"total_fees"`
	NetPnl        float64              `json:"net_pnl"`
	TradeCount    int                  `json:"trade_count"`
	Trades        []exchange.Execution `json:"trades"`
	Status        Status               `json:"status"`
}

// Closed 返回会话是否已平仓。
func (s Session) Closed() bool {
	return s.Status == StatusClosed
}

// sortReference 返回排序基准时间：已平仓用平仓时间，未平仓用开仓时间。
func (s Session) sortReference() time.Time {
	if s.Closed() {
		return s.ClosedAt
	}
	return s.OpenedAt
}
