package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"trade-journal/internal/config"
)

type fillAPI interface {
	FetchMyTrades(options ...ccxt.FetchMyTradesOptions) ([]ccxt.Trade, error)
}

// Client 负责从单个交易所账户拉取成交记录并实现重试机制。
type Client struct {
	cfg    config.AccountConfig
	fetch  config.FetchConfig
	logger *zap.Logger
	api    fillAPI

	loadMarkets func() error

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 根据账户配置构造对应交易所的客户端。
func NewClient(cfg config.AccountConfig, fetch config.FetchConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	client := &Client{
		cfg:    cfg,
		fetch:  fetch,
		logger: logger,
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Exchange)) {
	case config.ExchangeBitmex:
		ex := ccxt.NewBitmex(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		client.api = ex
		client.loadMarkets = func() error {
			_, err := ex.LoadMarkets()
			return err
		}
	case config.ExchangeBinanceUSD:
		ex := ccxt.NewBinanceusdm(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		client.api = ex
		client.loadMarkets = func() error {
			_, err := ex.LoadMarkets()
			return err
		}
	case config.ExchangeOKX:
		ex := ccxt.NewOkx(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		client.api = ex
		client.loadMarkets = func() error {
			_, err := ex.LoadMarkets()
			return err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, cfg.Exchange)
	}

	return client, nil
}

// Exchange 返回交易所标识。
func (c *Client) Exchange() string {
	return strings.ToLower(strings.TrimSpace(c.cfg.Exchange))
}

// FetchExecutions 按 since 游标分页拉取指定交易对的全部成交并归一化。
func (c *Client) FetchExecutions(ctx context.Context, req FetchRequest) ([]Execution, error) {
	if req.PageLimit <= 0 {
		req.PageLimit = 500
	}
	if req.MaxPages <= 0 {
		req.MaxPages = 40
	}

	cursor := req.Since.UnixMilli()
	if cursor < 0 {
		cursor = 0
	}

	executions := make([]Execution, 0, req.PageLimit)

	for page := 0; page < req.MaxPages; page++ {
		var raw []ccxt.Trade

		err := c.callWithRetry(ctx, fmt.Sprintf("fetch_my_trades_%s", req.Symbol), func() error {
			if err := c.ensureMarketsLoaded(ctx); err != nil {
				return err
			}

			result, err := c.api.FetchMyTrades(
				ccxt.WithFetchMyTradesSymbol(req.Symbol),
				ccxt.WithFetchMyTradesSince(cursor),
				ccxt.WithFetchMyTradesLimit(int64(req.PageLimit)),
			)
			if err != nil {
				return err
			}

			raw = result
			return nil
		})
		if err != nil {
			return nil, err
		}

		if len(raw) == 0 {
			break
		}

		for _, trade := range raw {
			exec := NormalizeTrade(c.Exchange(), trade)
			if !exec.Timestamp.IsZero() && exec.Timestamp.UnixMilli() < cursor {
				continue
			}
			executions = append(executions, exec)
		}

		last := raw[len(raw)-1]
		if last.Timestamp == nil {
			break
		}
		cursor = *last.Timestamp + 1

		if len(raw) < req.PageLimit {
			break
		}
	}

	c.logger.Debug("成交记录拉取完成",
		zap.String("exchange", c.Exchange()),
		zap.String("symbol", req.Symbol),
		zap.Int("count", len(executions)),
	)

	return executions, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		return c.loadMarkets()
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("exchange", c.Exchange()))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.fetch.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.fetch.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.fetch.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) && ccxtErr.Type == ccxt.OnMaintenanceErrType {
		message := strings.TrimSpace(ccxtErr.Message)
		if message == "" {
			message = "exchange under maintenance"
		}
		return fmt.Errorf("%w: %s", ErrMaintenance, message), false
	}

	if IsRetryable(err) {
		return err, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}
