package stats

import (
	"math"
	"testing"
	"time"

	"trade-journal/internal/session"
)

var statsBase = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func closedSession(id string, net, fees float64, closedOffset, duration time.Duration) session.Session {
	closedAt := statsBase.Add(closedOffset)
	return session.Session{
		ID:        id,
		Symbol:    "XBTUSD",
		Side:      session.SideLong,
		OpenedAt:  closedAt.Add(-duration),
		ClosedAt:  closedAt,
		Duration:  duration,
		NetPnl:    net,
		TotalFees: fees,
		Status:    session.StatusClosed,
	}
}

func TestComputeEmpty(t *testing.T) {
	summary := Compute(nil)
	if summary.TotalSessions != 0 || summary.WinRate != 0 {
		t.Fatalf("empty input must yield zero summary: %+v", summary)
	}
}

func TestComputeSummary(t *testing.T) {
	sessions := []session.Session{
		closedSession("XBTUSD#1", 0.02, 0.001, time.Hour, 30*time.Minute),
		closedSession("XBTUSD#2", -0.01, 0.001, 2*time.Hour, time.Hour),
		closedSession("XBTUSD#3", 0.03, 0.002, 3*time.Hour, 90*time.Minute),
		{
			ID:        "XBTUSD#4",
			OpenedAt:  statsBase.Add(4 * time.Hour),
			TotalFees: 0.0005,
			Status:    session.StatusOpen,
		},
	}

	summary := Compute(sessions)

	if summary.TotalSessions != 4 || summary.ClosedSessions != 3 || summary.OpenSessions != 1 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.WinCount != 2 || summary.LossCount != 1 {
		t.Errorf("unexpected win/loss: %d/%d", summary.WinCount, summary.LossCount)
	}
	if diff := math.Abs(summary.WinRate - 2.0/3.0); diff > 1e-9 {
		t.Errorf("unexpected win rate %f", summary.WinRate)
	}
	if diff := math.Abs(summary.TotalNetPnl - 0.04); diff > 1e-9 {
		t.Errorf("unexpected net pnl %f", summary.TotalNetPnl)
	}
	if diff := math.Abs(summary.TotalFees - 0.0045); diff > 1e-9 {
		t.Errorf("open session fees must be included, got %f", summary.TotalFees)
	}
	if diff := math.Abs(summary.ProfitFactor - 5.0); diff > 1e-9 {
		t.Errorf("unexpected profit factor %f", summary.ProfitFactor)
	}
	if summary.AvgDuration != time.Hour {
		t.Errorf("unexpected avg duration %s", summary.AvgDuration)
	}
	if summary.BestSessionID != "XBTUSD#3" || summary.WorstSessionID != "XBTUSD#2" {
		t.Errorf("unexpected extremes: best=%s worst=%s", summary.BestSessionID, summary.WorstSessionID)
	}
	// 净值曲线 0.02 -> 0.01 -> 0.04，峰值 0.02 跌到 0.01。
	if diff := math.Abs(summary.MaxDrawdown - 0.01); diff > 1e-9 {
		t.Errorf("unexpected drawdown %f", summary.MaxDrawdown)
	}
}

func TestComputeAllWinners(t *testing.T) {
	sessions := []session.Session{
		closedSession("ETHUSD#1", 1, 0, time.Hour, time.Hour),
		closedSession("ETHUSD#2", 2, 0, 2*time.Hour, time.Hour),
	}

	summary := Compute(sessions)
	if !math.IsInf(summary.ProfitFactor, 1) {
		t.Errorf("no losses should report infinite profit factor, got %f", summary.ProfitFactor)
	}
	if summary.MaxDrawdown != 0 {
		t.Errorf("monotonic equity has no drawdown, got %f", summary.MaxDrawdown)
	}
}

func TestComputeDrawdownNegativeStart(t *testing.T) {
	// 起步即亏损时峰值为首个净值点。
	got := computeDrawdown([]float64{-1, -3, -2})
	if got != 2 {
		t.Errorf("expected drawdown 2, got %f", got)
	}
}
