package stats

import (
	"math"
	"sort"
	"time"

	"trade-journal/internal/session"
)

// Summary 汇总已平仓会话的绩效指标。
type Summary struct {
	TotalSessions  int           `json:"total_sessions"`
	ClosedSessions int           `json:"closed_sessions"`
	OpenSessions   int           `json:"open_sessions"`
	WinCount       int           `json:"win_count"`
	LossCount      int           `json:"loss_count"`
	WinRate        float64       `json:"win_rate"`
	TotalNetPnl    float64       `json:"total_net_pnl"`
	TotalFees      float64       `json:"total_fees"`
	ProfitFactor   float64       `json:"profit_factor"`
	MaxDrawdown    float64       `json:"max_drawdown"`
	AvgDuration    time.Duration `json:"avg_duration"`
	BestSessionID  string        `json:"best_session_id"`
	BestNetPnl     float64       `json:"best_net_pnl"`
	WorstSessionID string        `json:"worst_session_id"`
	WorstNetPnl    float64       `json:"worst_net_pnl"`
}

// Compute 从会话列表归纳统计摘要。
// 胜率、盈亏比、回撤只统计已平仓会话，费用统计全部会话。
func Compute(sessions []session.Session) Summary {
	summary := Summary{TotalSessions: len(sessions)}
	if len(sessions) == 0 {
		return summary
	}

	closed := make([]session.Session, 0, len(sessions))
	for _, s := range sessions {
		summary.TotalFees += s.TotalFees
		if s.Closed() {
			closed = append(closed, s)
		} else {
			summary.OpenSessions++
		}
	}
	summary.ClosedSessions = len(closed)
	if len(closed) == 0 {
		return summary
	}

	// 按平仓时间升序重放，净值曲线才有意义。
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ClosedAt.Before(closed[j].ClosedAt)
	})

	var grossProfit, grossLoss, totalDuration float64
	equity := make([]float64, 0, len(closed))
	cumulative := 0.0

	for i, s := range closed {
		cumulative += s.NetPnl
		equity = append(equity, cumulative)
		totalDuration += float64(s.Duration)

		if s.NetPnl > 0 {
			summary.WinCount++
			grossProfit += s.NetPnl
		} else if s.NetPnl < 0 {
			summary.LossCount++
			grossLoss += -s.NetPnl
		}

		if i == 0 || s.NetPnl > summary.BestNetPnl {
			summary.BestSessionID = s.ID
			summary.BestNetPnl = s.NetPnl
		}
		if i == 0 || s.NetPnl < summary.WorstNetPnl {
			summary.WorstSessionID = s.ID
			summary.WorstNetPnl = s.NetPnl
		}
	}

	summary.TotalNetPnl = cumulative
	summary.WinRate = float64(summary.WinCount) / float64(len(closed))
	summary.AvgDuration = time.Duration(totalDuration / float64(len(closed)))
	if grossLoss > 0 {
		summary.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		summary.ProfitFactor = math.Inf(1)
	}
	summary.MaxDrawdown = computeDrawdown(equity)

	return summary
}

// computeDrawdown 返回累计净值曲线上峰值到谷底的最大跌幅（绝对值）。
// 净值以零起步，可能为负，因此直接用差值而不是比例。
func computeDrawdown(equity []float64) float64 {
	var peak, maxDD float64
	for i, v := range equity {
		if i == 0 || v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
