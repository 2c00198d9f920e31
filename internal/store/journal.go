package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-journal/internal/exchange"
	"trade-journal/internal/session"
)

// Journal 负责持久化成交记录与会话结果。
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

// SessionQuery 控制会话检索条件。
type SessionQuery struct {
	Account string
	Symbol  string
	Status  session.Status
	Limit   int
}

// NewJournal 初始化持久化服务，创建所需表结构。
func NewJournal(store *Store, logger *zap.Logger) (*Journal, error) {
	if store == nil {
		return nil, fmt.Errorf("store: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &Journal{
		db:     store.DB(),
		logger: logger,
	}

	if err := j.initSchema(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *Journal) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS executions (
	account TEXT NOT NULL,
	exec_id TEXT NOT NULL,
	exchange TEXT NOT NULL,
	symbol TEXT NOT NULL,
	order_id TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	cost REAL NOT NULL,
	commission REAL NOT NULL,
	ts TEXT NOT NULL,
	annotation TEXT NOT NULL DEFAULT '',
	exec_type TEXT NOT NULL,
	PRIMARY KEY (account, exec_id)
);
CREATE INDEX IF NOT EXISTS idx_executions_symbol ON executions(account, symbol);
CREATE TABLE IF NOT EXISTS sessions (
	account TEXT NOT NULL,
	id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	opened_at TEXT NOT NULL,
	closed_at TEXT,
	duration_ms INTEGER NOT NULL,
	max_size REAL NOT NULL,
	total_bought REAL NOT NULL,
	total_sold REAL NOT NULL,
	avg_entry_price REAL NOT NULL,
	avg_exit_price REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	total_fees REAL NOT NULL,
	net_pnl REAL NOT NULL,
	trade_count INTEGER NOT NULL,
	trades TEXT NOT NULL,
	status TEXT NOT NULL,
	PRIMARY KEY (account, id)
);
CREATE INDEX IF NOT EXISTS idx_sessions_symbol ON sessions(account, symbol);
`
	if _, err := j.db.Exec(stmt); err != nil {
		return fmt.Errorf("store: 初始化表失败: %w", err)
	}
	return nil
}

// SaveExecutions 以 (account, exec_id) 为键幂等写入成交记录。
func (j *Journal) SaveExecutions(ctx context.Context, account string, executions []exchange.Execution) error {
	if len(executions) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: 开启事务失败: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO executions
		(account, exec_id, exchange, symbol, order_id, side, quantity, price, cost, commission, ts, annotation, exec_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: 预编译语句失败: %w", err)
	}
	defer stmt.Close()

	for _, exec := range executions {
		if _, err := stmt.ExecContext(ctx,
			account, exec.ExecID, exec.Exchange, exec.Symbol, exec.OrderID,
			string(exec.Side), exec.Quantity, exec.Price, exec.Cost, exec.Commission,
			exec.Timestamp.UTC().Format(time.RFC3339Nano), exec.Annotation, exec.Type,
		); err != nil {
			return fmt.Errorf("store: 写入成交记录失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: 提交事务失败: %w", err)
	}
	return nil
}

// ListExecutions 返回账户在指定交易对下的全部成交记录，按时间升序。
func (j *Journal) ListExecutions(ctx context.Context, account, symbol string) ([]exchange.Execution, error) {
	query := `SELECT exchange, symbol, order_id, exec_id, side, quantity, price, cost, commission, ts, annotation, exec_type
		FROM executions WHERE account = ?`
	args := []interface{}{account}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY ts ASC`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: 查询成交记录失败: %w", err)
	}
	defer rows.Close()

	executions := make([]exchange.Execution, 0)
	for rows.Next() {
		var exec exchange.Execution
		var side, ts string
		if err := rows.Scan(&exec.Exchange, &exec.Symbol, &exec.OrderID, &exec.ExecID,
			&side, &exec.Quantity, &exec.Price, &exec.Cost, &exec.Commission,
			&ts, &exec.Annotation, &exec.Type); err != nil {
			return nil, fmt.Errorf("store: 解析成交记录失败: %w", err)
		}
		exec.Side = exchange.Side(side)
		parsed, parseErr := time.Parse(time.RFC3339Nano, ts)
		if parseErr != nil {
			return nil, fmt.Errorf("store: 解析成交时间失败: %w", parseErr)
		}
		exec.Timestamp = parsed
		executions = append(executions, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取成交记录失败: %w", err)
	}

	return executions, nil
}

// ReplaceSessions 以账户为单位整体替换会话结果。
// 会话由完整历史重算得出，增量更新没有意义。
func (j *Journal) ReplaceSessions(ctx context.Context, account string, sessions []session.Session) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: 开启事务失败: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE account = ?`, account); err != nil {
		return fmt.Errorf("store: 清理旧会话失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sessions
		(account, id, symbol, side, opened_at, closed_at, duration_ms, max_size,
		 total_bought, total_sold, avg_entry_price, avg_exit_price, realized_pnl,
		 total_fees, net_pnl, trade_count, trades, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: 预编译语句失败: %w", err)
	}
	defer stmt.Close()

	for _, s := range sessions {
		trades, marshalErr := json.Marshal(s.Trades)
		if marshalErr != nil {
			return fmt.Errorf("store: 序列化会话成交失败: %w", marshalErr)
		}

		var closedAt interface{}
		if s.Closed() {
			closedAt = s.ClosedAt.UTC().Format(time.RFC3339Nano)
		}

		if _, err := stmt.ExecContext(ctx,
			account, s.ID, s.Symbol, string(s.Side),
			s.OpenedAt.UTC().Format(time.RFC3339Nano), closedAt,
			s.Duration.Milliseconds(), s.MaxSize,
			s.TotalBought, s.TotalSold, s.AvgEntryPrice, s.AvgExitPrice,
			s.RealizedPnl, s.TotalFees, s.NetPnl, s.TradeCount,
			string(trades), string(s.Status),
		); err != nil {
			return fmt.Errorf("store: 写入会话失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: 提交事务失败: %w", err)
	}

	j.logger.Debug("会话结果已持久化",
		zap.String("account", account),
		zap.Int("sessions", len(sessions)),
	)
	return nil
}

// ListSessions 按条件检索会话，按（平仓时间，未平仓取开仓时间）降序。
func (j *Journal) ListSessions(ctx context.Context, q SessionQuery) ([]session.Session, error) {
	query := `SELECT id, symbol, side, opened_at, closed_at, duration_ms, max_size,
		total_bought, total_sold, avg_entry_price, avg_exit_price, realized_pnl,
		total_fees, net_pnl, trade_count, trades, status
		FROM sessions WHERE 1=1`
	args := make([]interface{}, 0, 4)

	if q.Account != "" {
		query += ` AND account = ?`
		args = append(args, q.Account)
	}
	if q.Symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, q.Symbol)
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(q.Status))
	}
	query += ` ORDER BY COALESCE(closed_at, opened_at) DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: 查询会话失败: %w", err)
	}
	defer rows.Close()

	sessions := make([]session.Session, 0)
	for rows.Next() {
		var s session.Session
		var side, openedAt, status, trades string
		var closedAt sql.NullString
		var durationMs int64
		if err := rows.Scan(&s.ID, &s.Symbol, &side, &openedAt, &closedAt, &durationMs,
			&s.MaxSize, &s.TotalBought, &s.TotalSold, &s.AvgEntryPrice, &s.AvgExitPrice,
			&s.RealizedPnl, &s.TotalFees, &s.NetPnl, &s.TradeCount, &trades, &status); err != nil {
			return nil, fmt.Errorf("store: 解析会话失败: %w", err)
		}

		s.Side = session.PositionSide(side)
		s.Status = session.Status(status)
		s.Duration = time.Duration(durationMs) * time.Millisecond

		opened, parseErr := time.Parse(time.RFC3339Nano, openedAt)
		if parseErr != nil {
			return nil, fmt.Errorf("store: 解析会话时间失败: %w", parseErr)
		}
		s.OpenedAt = opened

		if closedAt.Valid {
			closed, parseErr := time.Parse(time.RFC3339Nano, closedAt.String)
			if parseErr != nil {
				return nil, fmt.Errorf("store: 解析会话时间失败: %w", parseErr)
			}
			s.ClosedAt = closed
		}

		if err := json.Unmarshal([]byte(trades), &s.Trades); err != nil {
			return nil, fmt.Errorf("store: 解析会话成交失败: %w", err)
		}

		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取会话失败: %w", err)
	}

	return sessions, nil
}
