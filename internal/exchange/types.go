package exchange

import "time"

// Side 表示成交方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ExecTypeTrade 标记真实撮合成交，资金费率、清算等其它类型会被会话计算过滤。
const ExecTypeTrade = "Trade"

// Execution 为归一化后的单笔成交记录，由交易所适配层产出，之后不再修改。
type Execution struct {
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	OrderID    string    `json:"order_id"`
	ExecID     string    `json:"exec_id"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Cost       float64   `json:"cost"`
	Commission float64   `json:"commission"`
	Timestamp  time.Time `json:"timestamp"`
	Annotation string    `json:"annotation,omitempty"`
	Type       string    `json:"type"`
}

// FetchRequest 控制一次成交历史拉取。
type FetchRequest struct {
	Symbol    string
	Since     time.Time
	PageLimit int
	MaxPages  int
}
