package app

import (
	"sync"

	"trade-journal/internal/exchange"
)

// executionCache 按账户缓存成交历史，避免每次查询都回表。
// 写路径在同步成功后显式失效，不做TTL。
type executionCache struct {
	mu      sync.RWMutex
	entries map[string][]exchange.Execution
}

func newExecutionCache() *executionCache {
	return &executionCache{
		entries: make(map[string][]exchange.Execution),
	}
}

func (c *executionCache) Get(account string) ([]exchange.Execution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	executions, ok := c.entries[account]
	return executions, ok
}

func (c *executionCache) Set(account string, executions []exchange.Execution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[account] = executions
}

// Invalidate 在底层数据变更后丢弃账户缓存。
func (c *executionCache) Invalidate(account string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, account)
}
