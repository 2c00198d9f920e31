package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"trade-journal/internal/config"
)

// 会话计算依赖的注释字段，由此处统一写入自由文本，由会话层解析回结构化数据。
const (
	AnnotationPositionSideKey = "positionSide"
	AnnotationRealizedPnlKey  = "realizedPnl"
)

// satoshiPerUnit 为手续费主单位到最小单位的换算系数。
const satoshiPerUnit = 1e8

// NormalizeTrade 将 ccxt 成交记录映射为通用执行记录。
func NormalizeTrade(exchangeName string, trade ccxt.Trade) Execution {
	exec := Execution{
		Exchange: exchangeName,
		Symbol:   derefString(trade.Symbol),
		OrderID:  derefString(trade.Order),
		ExecID:   derefString(trade.Id),
		Side:     Side(strings.ToLower(derefString(trade.Side))),
		Quantity: derefFloat(trade.Amount),
		Price:    derefFloat(trade.Price),
		Cost:     derefFloat(trade.Cost),
		Type:     ExecTypeTrade,
	}

	if trade.Timestamp != nil {
		exec.Timestamp = time.UnixMilli(*trade.Timestamp).UTC()
	}

	info := trade.Info

	switch exchangeName {
	case config.ExchangeBitmex:
		if execType := stringField(info, "execType"); execType != "" {
			exec.Type = execType
		}
		// execComm 已经是聪计价的最小单位。
		exec.Commission = parseNumeric(info["execComm"])
		if exec.OrderID == "" {
			exec.OrderID = stringField(info, "orderID")
		}
	case config.ExchangeBinanceUSD:
		exec.Commission = parseNumeric(info["commission"]) * satoshiPerUnit
		exec.Annotation = buildAnnotation(
			strings.ToUpper(stringField(info, "positionSide")),
			parseNumeric(info["realizedPnl"]),
		)
	case config.ExchangeOKX:
		exec.Commission = parseNumeric(info["fee"]) * satoshiPerUnit
		exec.Annotation = buildAnnotation(
			strings.ToUpper(stringField(info, "posSide")),
			parseNumeric(info["fillPnl"]),
		)
	default:
		exec.Commission = parseNumeric(info["fee"]) * satoshiPerUnit
	}

	return exec
}

func buildAnnotation(positionSide string, realizedPnl float64) string {
	parts := make([]string, 0, 2)
	if positionSide != "" {
		parts = append(parts, fmt.Sprintf("%s=%s", AnnotationPositionSideKey, positionSide))
	}
	parts = append(parts, fmt.Sprintf("%s=%s", AnnotationRealizedPnlKey,
		strconv.FormatFloat(realizedPnl, 'f', -1, 64)))
	return strings.Join(parts, ";")
}

func stringField(info map[string]interface{}, key string) string {
	if info == nil {
		return ""
	}
	if v, ok := info[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case *float64:
		if v != nil {
			return *v
		}
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return 0
}
