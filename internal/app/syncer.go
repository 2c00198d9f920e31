package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trade-journal/internal/config"
	"trade-journal/internal/exchange"
	"trade-journal/internal/session"
	"trade-journal/internal/store"
)

// fillSource 抽象单账户成交拉取，便于测试替换。
type fillSource interface {
	Exchange() string
	FetchExecutions(ctx context.Context, req exchange.FetchRequest) ([]exchange.Execution, error)
}

// syncer 驱动 拉取 -> 入库 -> 重建会话 的完整同步链路。
type syncer struct {
	cfg        config.FetchConfig
	accounts   []config.AccountConfig
	clients    map[string]fillSource
	journal    *store.Journal
	calculator *session.Calculator
	cache      *executionCache
	logger     *zap.Logger
}

func newSyncer(cfg *config.Config, journal *store.Journal, calculator *session.Calculator, cache *executionCache, logger *zap.Logger) (*syncer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clients := make(map[string]fillSource, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		client, err := exchange.NewClient(account, cfg.Fetch, logger.Named(account.Name))
		if err != nil {
			return nil, fmt.Errorf("app: 创建账户 %s 客户端失败: %w", account.Name, err)
		}
		clients[account.Name] = client
	}

	return &syncer{
		cfg:        cfg.Fetch,
		accounts:   cfg.Accounts,
		clients:    clients,
		journal:    journal,
		calculator: calculator,
		cache:      cache,
		logger:     logger,
	}, nil
}

// SyncAll 并行同步所有账户，单账户失败不影响其他账户。
func (s *syncer) SyncAll(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, account := range s.accounts {
		account := account
		group.Go(func() error {
			if err := s.syncAccount(groupCtx, account); err != nil {
				s.logger.Error("账户同步失败",
					zap.String("account", account.Name),
					zap.Error(err),
				)
				return fmt.Errorf("app: 账户 %s 同步失败: %w", account.Name, err)
			}
			return nil
		})
	}

	return group.Wait()
}

func (s *syncer) syncAccount(ctx context.Context, account config.AccountConfig) error {
	client, ok := s.clients[account.Name]
	if !ok {
		return fmt.Errorf("app: 账户 %s 没有对应客户端", account.Name)
	}

	since := time.Now().Add(-s.cfg.Lookback)

	for _, market := range account.Markets {
		executions, err := client.FetchExecutions(ctx, exchange.FetchRequest{
			Symbol:    market,
			Since:     since,
			PageLimit: s.cfg.PageLimit,
			MaxPages:  s.cfg.MaxPages,
		})
		if err != nil {
			return err
		}
		if err := s.journal.SaveExecutions(ctx, account.Name, executions); err != nil {
			return err
		}
	}

	s.cache.Invalidate(account.Name)

	return s.rebuildSessions(ctx, account.Name, client.Exchange())
}

// rebuildSessions 从全量历史重算账户的会话并整体替换存量。
func (s *syncer) rebuildSessions(ctx context.Context, account, exchangeHint string) error {
	executions, err := s.loadExecutions(ctx, account)
	if err != nil {
		return err
	}

	sessions, err := s.calculator.Build(executions, exchangeHint)
	if err != nil {
		return err
	}

	if err := s.journal.ReplaceSessions(ctx, account, sessions); err != nil {
		return err
	}

	s.logger.Info("账户同步完成",
		zap.String("account", account),
		zap.Int("executions", len(executions)),
		zap.Int("sessions", len(sessions)),
	)
	return nil
}

func (s *syncer) loadExecutions(ctx context.Context, account string) ([]exchange.Execution, error) {
	if cached, ok := s.cache.Get(account); ok {
		return cached, nil
	}

	executions, err := s.journal.ListExecutions(ctx, account, "")
	if err != nil {
		return nil, err
	}

	s.cache.Set(account, executions)
	return executions, nil
}
