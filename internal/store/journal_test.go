package store

import (
	"context"
	"testing"
	"time"

	"trade-journal/internal/config"
	"trade-journal/internal/exchange"
	"trade-journal/internal/session"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	sqlite, err := NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	journal, err := NewJournal(sqlite, nil)
	if err != nil {
		t.Fatalf("init journal: %v", err)
	}
	return journal
}

func sampleExecution(execID string, offset time.Duration) exchange.Execution {
	return exchange.Execution{
		Exchange:   "bitmex",
		Symbol:     "XBTUSD",
		OrderID:    "ord-" + execID,
		ExecID:     execID,
		Side:       exchange.SideBuy,
		Quantity:   100,
		Price:      50000,
		Commission: 150,
		Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset),
		Type:       exchange.ExecTypeTrade,
	}
}

func TestSaveExecutionsUpsert(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	first := sampleExecution("e1", 0)
	if err := journal.SaveExecutions(ctx, "main", []exchange.Execution{first}); err != nil {
		t.Fatalf("SaveExecutions returned error: %v", err)
	}

	// 同一 exec_id 重复写入应覆盖而不是追加。
	first.Price = 50001
	if err := journal.SaveExecutions(ctx, "main", []exchange.Execution{first, sampleExecution("e2", time.Minute)}); err != nil {
		t.Fatalf("second SaveExecutions returned error: %v", err)
	}

	executions, err := journal.ListExecutions(ctx, "main", "")
	if err != nil {
		t.Fatalf("ListExecutions returned error: %v", err)
	}
	if len(executions) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(executions))
	}
	if executions[0].Price != 50001 {
		t.Errorf("upsert did not replace, price=%f", executions[0].Price)
	}
	if !executions[0].Timestamp.Before(executions[1].Timestamp) {
		t.Errorf("executions must come back in time order")
	}
}

func TestExecutionsScopedByAccount(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	if err := journal.SaveExecutions(ctx, "a", []exchange.Execution{sampleExecution("e1", 0)}); err != nil {
		t.Fatalf("SaveExecutions returned error: %v", err)
	}
	if err := journal.SaveExecutions(ctx, "b", []exchange.Execution{sampleExecution("e1", 0)}); err != nil {
		t.Fatalf("SaveExecutions returned error: %v", err)
	}

	executions, err := journal.ListExecutions(ctx, "a", "")
	if err != nil {
		t.Fatalf("ListExecutions returned error: %v", err)
	}
	if len(executions) != 1 {
		t.Fatalf("accounts must not share executions, got %d", len(executions))
	}
}

func TestReplaceSessionsRoundTrip(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	closedSession := session.Session{
		ID:            "XBTUSD#1",
		Symbol:        "XBTUSD",
		Side:          session.SideLong,
		OpenedAt:      opened,
		ClosedAt:      opened.Add(time.Hour),
		Duration:      time.Hour,
		MaxSize:       100,
		TotalBought:   100,
		TotalSold:     100,
		AvgEntryPrice: 50000,
		AvgExitPrice:  50500,
		RealizedPnl:   0.00198,
		TotalFees:     0.0000045,
		NetPnl:        0.0019755,
		TradeCount:    2,
		Trades:        []exchange.Execution{sampleExecution("e1", 0), sampleExecution("e2", time.Hour)},
		Status:        session.StatusClosed,
	}
	openSession := session.Session{
		ID:         "XBTUSD#2",
		Symbol:     "XBTUSD",
		Side:       session.SideShort,
		OpenedAt:   opened.Add(2 * time.Hour),
		TradeCount: 1,
		Trades:     []exchange.Execution{sampleExecution("e3", 2*time.Hour)},
		Status:     session.StatusOpen,
	}

	if err := journal.ReplaceSessions(ctx, "main", []session.Session{closedSession, openSession}); err != nil {
		t.Fatalf("ReplaceSessions returned error: %v", err)
	}

	sessions, err := journal.ListSessions(ctx, SessionQuery{Account: "main"})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	// 未平仓会话开仓更晚，应排在最前。
	if sessions[0].ID != "XBTUSD#2" {
		t.Errorf("expected open session first, got %s", sessions[0].ID)
	}
	if sessions[0].Closed() {
		t.Errorf("open session came back closed")
	}

	restored := sessions[1]
	if restored.ID != closedSession.ID || restored.Side != closedSession.Side {
		t.Errorf("identity mismatch: %+v", restored)
	}
	if restored.ClosedAt != closedSession.ClosedAt || restored.Duration != closedSession.Duration {
		t.Errorf("time fields mismatch: %+v", restored)
	}
	if restored.NetPnl != closedSession.NetPnl || restored.TotalFees != closedSession.TotalFees {
		t.Errorf("pnl fields mismatch: %+v", restored)
	}
	if len(restored.Trades) != 2 || restored.Trades[0].ExecID != "e1" {
		t.Errorf("trades blob mismatch: %+v", restored.Trades)
	}
}

func TestReplaceSessionsDropsStale(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stale := session.Session{
		ID: "XBTUSD#1", Symbol: "XBTUSD", Side: session.SideLong,
		OpenedAt: opened, Status: session.StatusOpen,
	}
	if err := journal.ReplaceSessions(ctx, "main", []session.Session{stale}); err != nil {
		t.Fatalf("ReplaceSessions returned error: %v", err)
	}
	if err := journal.ReplaceSessions(ctx, "main", nil); err != nil {
		t.Fatalf("empty ReplaceSessions returned error: %v", err)
	}

	sessions, err := journal.ListSessions(ctx, SessionQuery{Account: "main"})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("stale sessions must be dropped on replace, got %d", len(sessions))
	}
}

func TestListSessionsFilters(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	sessions := []session.Session{
		{ID: "XBTUSD#1", Symbol: "XBTUSD", Side: session.SideLong, OpenedAt: opened,
			ClosedAt: opened.Add(time.Hour), Status: session.StatusClosed},
		{ID: "ETHUSD#1", Symbol: "ETHUSD", Side: session.SideShort, OpenedAt: opened.Add(2 * time.Hour),
			Status: session.StatusOpen},
	}
	if err := journal.ReplaceSessions(ctx, "main", sessions); err != nil {
		t.Fatalf("ReplaceSessions returned error: %v", err)
	}

	bySymbol, err := journal.ListSessions(ctx, SessionQuery{Account: "main", Symbol: "ETHUSD"})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(bySymbol) != 1 || bySymbol[0].ID != "ETHUSD#1" {
		t.Errorf("symbol filter failed: %+v", bySymbol)
	}

	byStatus, err := journal.ListSessions(ctx, SessionQuery{Account: "main", Status: session.StatusClosed})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != "XBTUSD#1" {
		t.Errorf("status filter failed: %+v", byStatus)
	}

	limited, err := journal.ListSessions(ctx, SessionQuery{Account: "main", Limit: 1})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit not applied, got %d", len(limited))
	}
}
