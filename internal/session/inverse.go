package session

import (
	"fmt"
	"math"
	"sort"
	"time"

	"trade-journal/internal/exchange"
)

// isInverseTrade 过滤反向合约路径的有效成交：真实撮合、正数量、订单号非空。
func isInverseTrade(e exchange.Execution) bool {
	return e.Type == exchange.ExecTypeTrade && e.Quantity > 0 && e.OrderID != ""
}

// inverseAccumulator 保存单个会话的累计状态，每个会话构造一个新值。
type inverseAccumulator struct {
	openedAt   time.Time
	bought     float64
	sold       float64
	buyCost    float64
	sellCost   float64
	commission float64
	maxSize    float64
	trades     []exchange.Execution
}

// buildInverseSessions 以单仓位账本重建反向合约会话。
// 输入为到达序，内部按交易对分组后按时间稳定排序。
func buildInverseSessions(executions []exchange.Execution) []Session {
	bySymbol := make(map[string][]exchange.Execution)
	symbols := make([]string, 0)
	for _, exec := range executions {
		if !isInverseTrade(exec) {
			continue
		}
		if _, ok := bySymbol[exec.Symbol]; !ok {
			symbols = append(symbols, exec.Symbol)
		}
		bySymbol[exec.Symbol] = append(bySymbol[exec.Symbol], exec)
	}
	sort.Strings(symbols)

	sessions := make([]Session, 0)
	seq := 0

	for _, symbol := range symbols {
		list := bySymbol[symbol]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Timestamp.Before(list[j].Timestamp)
		})

		position := 0.0
		var acc inverseAccumulator

		for _, exec := range list {
			signed := exec.Quantity
			if exec.Side == exchange.SideSell {
				signed = -signed
			}
			newPosition := position + signed

			if position == 0 {
				acc = inverseAccumulator{openedAt: exec.Timestamp}
			}

			acc.apply(exec)

			switch {
			case newPosition == 0:
				seq++
				sessions = append(sessions, acc.finalize(symbol, seq, true, exec.Timestamp))
				acc = inverseAccumulator{}

			case position != 0 && oppositeSigns(position, newPosition):
				// 翻转：本笔成交拆分为抹平旧会话与开启新会话两部分。
				overflow := math.Abs(newPosition)
				if newPosition < 0 {
					acc.sold -= overflow
					acc.sellCost -= overflow * exec.Price
				} else {
					acc.bought -= overflow
					acc.buyCost -= overflow * exec.Price
				}
				seq++
				sessions = append(sessions, acc.finalize(symbol, seq, true, exec.Timestamp))
				acc = flipAccumulator(exec, overflow, newPosition < 0)

			default:
				if abs := math.Abs(newPosition); abs > acc.maxSize {
					acc.maxSize = abs
				}
			}

			position = newPosition
		}

		if position != 0 && len(acc.trades) > 0 {
			last := acc.trades[len(acc.trades)-1].Timestamp
			seq++
			sessions = append(sessions, acc.finalize(symbol, seq, false, last))
		}
	}

	return sessions
}

func (a *inverseAccumulator) apply(exec exchange.Execution) {
	if exec.Side == exchange.SideBuy {
		a.bought += exec.Quantity
		a.buyCost += exec.Quantity * exec.Price
	} else {
		a.sold += exec.Quantity
		a.sellCost += exec.Quantity * exec.Price
	}
	a.commission += exec.Commission
	a.trades = append(a.trades, exec)
}

// flipAccumulator 以翻转溢出的数量开启新会话。
// 手续费整笔计入新会话，旧会话的累计中也已包含同一笔，保持既有口径。
func flipAccumulator(exec exchange.Execution, overflow float64, short bool) inverseAccumulator {
	acc := inverseAccumulator{
		openedAt:   exec.Timestamp,
		commission: exec.Commission,
		maxSize:    overflow,
		trades:     []exchange.Execution{exec},
	}
	if short {
		acc.sold = overflow
		acc.sellCost = overflow * exec.Price
	} else {
		acc.bought = overflow
		acc.buyCost = overflow * exec.Price
	}
	return acc
}

func (a *inverseAccumulator) finalize(symbol string, seq int, closed bool, closeRef time.Time) Session {
	side := SideShort
	if a.bought > a.sold {
		side = SideLong
	}

	var entry, exit float64
	if side == SideLong {
		if a.bought > 0 {
			entry = a.buyCost / a.bought
		}
		if closed && a.sold > 0 {
			exit = a.sellCost / a.sold
		}
	} else {
		if a.sold > 0 {
			entry = a.sellCost / a.sold
		}
		if closed && a.bought > 0 {
			exit = a.buyCost / a.bought
		}
	}

	// 反向合约盈亏按价格倒数计算，以基础资产计价。
	pnl := 0.0
	if closed && entry > 0 && exit > 0 {
		closedQty := math.Min(a.bought, a.sold)
		if side == SideLong {
			pnl = closedQty * (1/entry - 1/exit)
		} else {
			pnl = closedQty * (1/exit - 1/entry)
		}
	}

	fees := math.Abs(a.commission) / satoshiPerUnit
	net := -fees
	if closed {
		net = pnl - fees
	}

	sess := Session{
		ID:            fmt.Sprintf("%s#%d", symbol, seq),
		Symbol:        symbol,
		Side:          side,
		OpenedAt:      a.openedAt,
		Duration:      closeRef.Sub(a.openedAt),
		MaxSize:       a.maxSize,
		TotalBought:   a.bought,
		TotalSold:     a.sold,
		AvgEntryPrice: entry,
		TotalFees:     fees,
		NetPnl:        net,
		TradeCount:    len(a.trades),
		Trades:        a.trades,
		Status:        StatusOpen,
	}
	if closed {
		sess.Status = StatusClosed
		sess.ClosedAt = closeRef
		sess.AvgExitPrice = exit
		sess.RealizedPnl = pnl
	}
	return sess
}

func oppositeSigns(a, b float64) bool {
	return (a > 0 && b < 0) || (a < 0 && b > 0)
}
