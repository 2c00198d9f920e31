package session

import (
	"strconv"
	"strings"

	"trade-journal/internal/exchange"
)

// 对冲模式的持仓方向标签。
const (
	tagLong  = "LONG"
	tagShort = "SHORT"
)

// annotationHint 为注释文本解析出的结构化字段。
// 缺失或无法解析时保持零值：中性方向标签、零盈亏。
type annotationHint struct {
	PositionSide string
	RealizedPnl  float64
}

// parseAnnotation 从自由文本注释中提取持仓方向与交易所上报的已实现盈亏。
// 单条坏注释不会中断整体计算，只会回退到默认值。
func parseAnnotation(text string) annotationHint {
	var hint annotationHint

	for _, part := range strings.Split(text, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])

		switch key {
		case exchange.AnnotationPositionSideKey:
			side := strings.ToUpper(value)
			if side == tagLong || side == tagShort {
				hint.PositionSide = side
			}
		case exchange.AnnotationRealizedPnlKey:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				hint.RealizedPnl = f
			}
		}
	}

	return hint
}
