package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-journal/internal/config"
	"trade-journal/internal/review"
	"trade-journal/internal/session"
	"trade-journal/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 完成装配后启动HTTP服务与周期同步循环，阻塞直到收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易日志系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Int("accounts", len(a.cfg.Accounts)),
	)

	journal, err := store.NewJournal(a.store, a.logger)
	if err != nil {
		return err
	}

	calculator := session.NewCalculator(session.Config{
		FlatEpsilon:  a.cfg.Session.FlatEpsilon,
		GapThreshold: a.cfg.Session.GapThreshold,
	}, a.logger)

	cache := newExecutionCache()
	sync, err := newSyncer(a.cfg, journal, calculator, cache, a.logger)
	if err != nil {
		return err
	}

	var reviewer *review.Client
	if a.cfg.OpenAI.Enabled {
		reviewer, err = review.NewClient(a.cfg.OpenAI, a.logger)
		if err != nil {
			return err
		}
	}

	srv := &server{
		journal:  journal,
		syncer:   sync,
		reviewer: reviewer,
		logger:   a.logger,
	}
	if err := startServer(ctx, srv, a.cfg.Server.Port, a.logger); err != nil {
		return err
	}

	if err := sync.SyncAll(ctx); err != nil {
		a.logger.Error("首次同步失败", zap.Error(err))
	}

	interval := a.cfg.Scheduler.SyncInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			if err := sync.SyncAll(ctx); err != nil {
				a.logger.Error("周期同步失败", zap.Error(err))
			}
		}
	}
}
