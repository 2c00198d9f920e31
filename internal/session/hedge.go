package session

import (
	"fmt"
	"math"
	"sort"
	"time"

	"trade-journal/internal/exchange"
)

// isHedgeTrade 过滤对冲模式路径的有效成交。
// 对冲路径按订单聚合，订单号缺失的成交会归入同分组的空订单键。
func isHedgeTrade(e exchange.Execution) bool {
	return e.Type == exchange.ExecTypeTrade && e.Quantity > 0
}

// aggregatedOrder 将同一订单的多笔部分成交汇总为一次原子仓位变动。
type aggregatedOrder struct {
	orderID     string
	side        exchange.Side
	quantity    float64
	cost        float64
	commission  float64
	realizedPnl float64
	timestamp   time.Time
	executions  []exchange.Execution
}

func (o *aggregatedOrder) avgPrice() float64 {
	if o.quantity <= 0 {
		return 0
	}
	return o.cost / o.quantity
}

// hedgeAccumulator 保存单个 (交易对, 方向) 会话的累计状态。
type hedgeAccumulator struct {
	openedAt    time.Time
	posSide     string
	openQty     float64
	openCost    float64
	closeQty    float64
	closeCost   float64
	commission  float64
	realizedPnl float64
	maxSize     float64
	orders      []*aggregatedOrder
}

type hedgePartition struct {
	symbol  string
	posSide string
	orders  []*aggregatedOrder
}

// buildHedgeSessions 以双仓位账本重建对冲模式会话：
// 多空两本账按 (交易对, 方向标签) 独立分组，各自维护运行仓位。
func buildHedgeSessions(executions []exchange.Execution, epsilon float64, gap time.Duration) []Session {
	partitions := aggregateHedgeOrders(executions)

	sessions := make([]Session, 0)
	seq := 0

	for _, partition := range partitions {
		openingSide := exchange.SideBuy
		if partition.posSide == tagShort {
			openingSide = exchange.SideSell
		}

		position := 0.0
		var acc *hedgeAccumulator
		var prevTs time.Time

		for _, order := range partition.orders {
			// 长时间空窗且仓位已归零时强制切分会话，避免无关交易被并入。
			if acc != nil && !prevTs.IsZero() &&
				order.timestamp.Sub(prevTs) > gap && isFlat(position, epsilon) {
				seq++
				sessions = append(sessions, acc.finalize(partition.symbol, seq, epsilon, prevTs))
				acc = nil
				position = 0
			}

			if acc == nil {
				acc = &hedgeAccumulator{
					openedAt: order.timestamp,
					posSide:  partition.posSide,
				}
			}

			positionBefore := position
			if order.side == openingSide {
				position += order.quantity
				acc.openQty += order.quantity
				acc.openCost += order.cost
			} else {
				position -= order.quantity
				acc.closeQty += order.quantity
				acc.closeCost += order.cost
			}
			acc.commission += order.commission
			acc.realizedPnl += order.realizedPnl
			acc.orders = append(acc.orders, order)

			if abs := math.Abs(position); abs > acc.maxSize {
				acc.maxSize = abs
			}

			if !isFlat(positionBefore, epsilon) && isFlat(position, epsilon) {
				seq++
				sessions = append(sessions, acc.finalize(partition.symbol, seq, epsilon, order.timestamp))
				acc = nil
				position = 0
			}

			prevTs = order.timestamp
		}

		if acc != nil {
			last := acc.orders[len(acc.orders)-1].timestamp
			seq++
			sessions = append(sessions, acc.finalize(partition.symbol, seq, epsilon, last))
		}
	}

	return sessions
}

// aggregateHedgeOrders 先按 (交易对, 方向标签) 分组，再把每组内的成交按订单号聚合。
// 分组按键名排序，保证多次运行生成一致的会话序号。
func aggregateHedgeOrders(executions []exchange.Execution) []hedgePartition {
	type groupKey struct {
		symbol  string
		posSide string
	}

	grouped := make(map[groupKey][]exchange.Execution)
	for _, exec := range executions {
		if !isHedgeTrade(exec) {
			continue
		}
		hint := parseAnnotation(exec.Annotation)
		key := groupKey{symbol: exec.Symbol, posSide: hint.PositionSide}
		grouped[key] = append(grouped[key], exec)
	}

	keys := make([]groupKey, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].symbol != keys[j].symbol {
			return keys[i].symbol < keys[j].symbol
		}
		return keys[i].posSide < keys[j].posSide
	})

	partitions := make([]hedgePartition, 0, len(keys))
	for _, key := range keys {
		byOrder := make(map[string]*aggregatedOrder)
		orders := make([]*aggregatedOrder, 0)

		for _, exec := range grouped[key] {
			order, ok := byOrder[exec.OrderID]
			if !ok {
				order = &aggregatedOrder{
					orderID:   exec.OrderID,
					side:      exec.Side,
					timestamp: exec.Timestamp,
				}
				byOrder[exec.OrderID] = order
				orders = append(orders, order)
			}
			order.quantity += exec.Quantity
			order.cost += exec.Quantity * exec.Price
			order.commission += exec.Commission
			order.realizedPnl += parseAnnotation(exec.Annotation).RealizedPnl
			if exec.Timestamp.Before(order.timestamp) {
				order.timestamp = exec.Timestamp
			}
			order.executions = append(order.executions, exec)
		}

		sort.SliceStable(orders, func(i, j int) bool {
			return orders[i].timestamp.Before(orders[j].timestamp)
		})

		partitions = append(partitions, hedgePartition{
			symbol:  key.symbol,
			posSide: key.posSide,
			orders:  orders,
		})
	}

	return partitions
}

func (a *hedgeAccumulator) finalize(symbol string, seq int, epsilon float64, closeRef time.Time) Session {
	side := SideLong
	if a.posSide == tagShort {
		side = SideShort
	}

	var entry, exit float64
	if a.openQty > 0 {
		entry = a.openCost / a.openQty
	}
	if a.closeQty > 0 {
		exit = a.closeCost / a.closeQty
	}

	closed := math.Abs(a.openQty-a.closeQty) <= epsilon && a.closeQty > 0

	fees := math.Abs(a.commission) / satoshiPerUnit
	net := -fees
	if closed {
		net = a.realizedPnl - fees
	}

	trades := make([]exchange.Execution, 0)
	for _, order := range a.orders {
		trades = append(trades, order.executions...)
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})

	bought, sold := a.openQty, a.closeQty
	if side == SideShort {
		bought, sold = a.closeQty, a.openQty
	}

	sess := Session{
		ID:            fmt.Sprintf("%s#%d", symbol, seq),
		Symbol:        symbol,
		Side:          side,
		OpenedAt:      a.openedAt,
		Duration:      closeRef.Sub(a.openedAt),
		MaxSize:       a.maxSize,
		TotalBought:   bought,
		TotalSold:     sold,
		AvgEntryPrice: entry,
		TotalFees:     fees,
		NetPnl:        net,
		TradeCount:    len(trades),
		Trades:        trades,
		Status:        StatusOpen,
	}
	if closed {
		sess.Status = StatusClosed
		sess.ClosedAt = closeRef
		sess.AvgExitPrice = exit
		sess.RealizedPnl = a.realizedPnl
	}
	return sess
}

func isFlat(position, epsilon float64) bool {
	return math.Abs(position) <= epsilon
}
