package chart

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"trade-journal/internal/session"
)

const (
	colorBackground = "#0b1220"
	colorText       = "#e5e7eb"
	colorTextMuted  = "#9ca3af"
	colorEquity     = "#3b82f6"
	colorSmoothed   = "#fbbf24"
	colorWin        = "#34d399"
	colorLoss       = "#f87171"

	chartWidthPx  = 1200
	chartHeightPx = 420

	smaWindow = 5
)

// Render 将已平仓会话渲染为净值曲线与单次盈亏柱状图页面。
func Render(w io.Writer, sessions []session.Session) error {
	closed := make([]session.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Closed() {
			closed = append(closed, s)
		}
	}
	if len(closed) == 0 {
		return fmt.Errorf("chart: 没有可绘制的已平仓会话")
	}

	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ClosedAt.Before(closed[j].ClosedAt)
	})

	xAxis := make([]string, len(closed))
	equity := make([]float64, len(closed))
	cumulative := 0.0
	for i, s := range closed {
		xAxis[i] = s.ClosedAt.UTC().Format("01-02 15:04")
		cumulative += s.NetPnl
		equity[i] = cumulative
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildEquityChart(xAxis, equity), buildPnlChart(xAxis, closed))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("chart: 渲染页面失败: %w", err)
	}
	return nil
}

func chartInit(title string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      title,
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorText, FontSize: 16},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextMuted}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextMuted},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextMuted, Opacity: opts.Float(0.15)}},
		}),
	}
}

func buildEquityChart(xAxis []string, equity []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(chartInit("累计净盈亏")...)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", toLineData(equity, len(xAxis)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))

	// SMA 平滑线需要至少一个完整窗口。
	if len(equity) >= smaWindow {
		sma := talib.Sma(equity, smaWindow)
		line.AddSeries(fmt.Sprintf("SMA%d", smaWindow), toLineData(sma, len(xAxis)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorSmoothed, Width: 2}))
	}
	return line
}

func buildPnlChart(xAxis []string, closed []session.Session) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(chartInit("单次会话净盈亏")...)

	data := make([]opts.BarData, len(closed))
	for i, s := range closed {
		color := colorLoss
		if s.NetPnl >= 0 {
			color = colorWin
		}
		data[i] = opts.BarData{
			Name:      s.ID,
			Value:     round(s.NetPnl, 8),
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("NetPnl", data)
	return bar
}

func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		if math.IsNaN(series[i]) {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(series[i], 8)}
		}
	}
	return line
}

func round(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
