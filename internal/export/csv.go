package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"trade-journal/internal/exchange"
	"trade-journal/internal/session"
)

var executionHeader = []string{
	"exchange", "symbol", "order_id", "exec_id", "side",
	"quantity", "price", "cost", "commission", "timestamp", "annotation", "type",
}

var sessionHeader = []string{
	"id", "symbol", "side", "opened_at", "closed_at", "duration",
	"max_size", "total_bought", "total_sold", "avg_entry_price", "avg_exit_price",
	"realized_pnl", "total_fees", "net_pnl", "trade_count", "status",
}

// WriteExecutions 将成交记录写成 CSV，包含表头。
func WriteExecutions(w io.Writer, executions []exchange.Execution) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(executionHeader); err != nil {
		return fmt.Errorf("export: 写入表头失败: %w", err)
	}

	for _, exec := range executions {
		record := []string{
			exec.Exchange,
			exec.Symbol,
			exec.OrderID,
			exec.ExecID,
			string(exec.Side),
			formatFloat(exec.Quantity),
			formatFloat(exec.Price),
			formatFloat(exec.Cost),
			formatFloat(exec.Commission),
			exec.Timestamp.UTC().Format(time.RFC3339Nano),
			exec.Annotation,
			exec.Type,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("export: 写入成交记录失败: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("export: 刷新CSV失败: %w", err)
	}
	return nil
}

// ReadExecutions 从 CSV 读回成交记录，用于导入离线账单。
func ReadExecutions(r io.Reader) ([]exchange.Execution, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(executionHeader)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("export: 读取CSV失败: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("export: CSV 为空")
	}
	if records[0][0] != executionHeader[0] {
		return nil, fmt.Errorf("export: CSV 缺少表头")
	}

	executions := make([]exchange.Execution, 0, len(records)-1)
	for i, record := range records[1:] {
		exec, err := parseExecutionRecord(record)
		if err != nil {
			return nil, fmt.Errorf("export: 第 %d 行解析失败: %w", i+2, err)
		}
		executions = append(executions, exec)
	}
	return executions, nil
}

func parseExecutionRecord(record []string) (exchange.Execution, error) {
	quantity, err := strconv.ParseFloat(record[5], 64)
	if err != nil {
		return exchange.Execution{}, fmt.Errorf("quantity 非法: %w", err)
	}
	price, err := strconv.ParseFloat(record[6], 64)
	if err != nil {
		return exchange.Execution{}, fmt.Errorf("price 非法: %w", err)
	}
	cost, err := strconv.ParseFloat(record[7], 64)
	if err != nil {
		return exchange.Execution{}, fmt.Errorf("cost 非法: %w", err)
	}
	commission, err := strconv.ParseFloat(record[8], 64)
	if err != nil {
		return exchange.Execution{}, fmt.Errorf("commission 非法: %w", err)
	}
	timestamp, err := time.Parse(time.RFC3339Nano, record[9])
	if err != nil {
		return exchange.Execution{}, fmt.Errorf("timestamp 非法: %w", err)
	}

	return exchange.Execution{
		Exchange:   record[0],
		Symbol:     record[1],
		OrderID:    record[2],
		ExecID:     record[3],
		Side:       exchange.Side(record[4]),
		Quantity:   quantity,
		Price:      price,
		Cost:       cost,
		Commission: commission,
		Timestamp:  timestamp,
		Annotation: record[10],
		Type:       record[11],
	}, nil
}

// WriteSessions 将会话汇总写成 CSV，不含逐笔成交明细。
func WriteSessions(w io.Writer, sessions []session.Session) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(sessionHeader); err != nil {
		return fmt.Errorf("export: 写入表头失败: %w", err)
	}

	for _, s := range sessions {
		closedAt := ""
		if s.Closed() {
			closedAt = s.ClosedAt.UTC().Format(time.RFC3339Nano)
		}
		record := []string{
			s.ID,
			s.Symbol,
			string(s.Side),
			s.OpenedAt.UTC().Format(time.RFC3339Nano),
			closedAt,
			s.Duration.String(),
			formatFloat(s.MaxSize),
			formatFloat(s.TotalBought),
			formatFloat(s.TotalSold),
			formatFloat(s.AvgEntryPrice),
			formatFloat(s.AvgExitPrice),
			formatFloat(s.RealizedPnl),
			formatFloat(s.TotalFees),
			formatFloat(s.NetPnl),
			strconv.Itoa(s.TradeCount),
			string(s.Status),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("export: 写入会话失败: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("export: 刷新CSV失败: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
