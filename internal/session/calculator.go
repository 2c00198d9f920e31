package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"trade-journal/internal/exchange"
)

// Config 控制会话重建参数。
type Config struct {
	// FlatEpsilon 为对冲模式的持平容差，小于该值的残余仓位视为交易所舍入噪声。
	FlatEpsilon float64
	// GapThreshold 为对冲模式的空窗切分阈值。
	GapThreshold time.Duration
}

func (c Config) normalize() Config {
	if c.FlatEpsilon <= 0 {
		c.FlatEpsilon = 0.01
	}
	if c.GapThreshold <= 0 {
		c.GapThreshold = 2 * time.Hour
	}
	return c
}

// Calculator 将一段完整的成交历史重建为仓位会话列表。
// 计算是纯函数：不修改调用方数据，不做任何 I/O。
type Calculator struct {
	cfg    Config
	logger *zap.Logger
}

// NewCalculator 创建会话计算器。
func NewCalculator(cfg Config, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		cfg:    cfg.normalize(),
		logger: logger,
	}
}

// Build 根据交易所提示或首条记录的交易对形态选择计算路径，
// 输出按（平仓时间，未平仓取开仓时间）降序排列的会话。
func (c *Calculator) Build(executions []exchange.Execution, exchangeHint string) ([]Session, error) {
	if len(executions) == 0 {
		return []Session{}, nil
	}

	if err := checkTimestamps(executions); err != nil {
		return nil, err
	}

	// 排序在副本上进行，调用方共享的切片不受影响。
	input := make([]exchange.Execution, len(executions))
	copy(input, executions)

	var sessions []Session
	if useHedgeMode(input, exchangeHint) {
		sessions = buildHedgeSessions(input, c.cfg.FlatEpsilon, c.cfg.GapThreshold)
	} else {
		sessions = buildInverseSessions(input)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].sortReference().After(sessions[j].sortReference())
	})

	c.logger.Debug("会话重建完成",
		zap.Int("executions", len(executions)),
		zap.Int("sessions", len(sessions)),
	)

	return sessions, nil
}

// checkTimestamps 校验数据契约：有效成交必须携带可排序的时间戳。
func checkTimestamps(executions []exchange.Execution) error {
	for _, exec := range executions {
		if exec.Type == exchange.ExecTypeTrade && exec.Quantity > 0 && exec.Timestamp.IsZero() {
			return fmt.Errorf("session: 成交记录缺少时间戳 (symbol=%s order=%s)", exec.Symbol, exec.OrderID)
		}
	}
	return nil
}

// useHedgeMode 为一次性的路径分类：优先采用显式的交易所提示，
// 否则根据首条记录的交易对形态推断。
func useHedgeMode(executions []exchange.Execution, hint string) bool {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "bitmex":
		return false
	case "binance", "binanceusdm", "okx", "okex":
		return true
	}

	symbol := strings.ToUpper(executions[0].Symbol)
	// 永续交割或稳定币计价对视为对冲模式的线性合约形态。
	return strings.Contains(symbol, "-SWAP") ||
		strings.Contains(symbol, ":") ||
		strings.Contains(symbol, "USDT") ||
		strings.Contains(symbol, "USDC")
}
