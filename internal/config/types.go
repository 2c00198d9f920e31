package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// 支持的交易所标识。
const (
	ExchangeBitmex     = "bitmex"
	ExchangeBinanceUSD = "binanceusdm"
	ExchangeOKX        = "okx"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Accounts  []AccountConfig `mapstructure:"accounts"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Session   SessionConfig   `mapstructure:"session"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// AccountConfig 描述单个交易所账户。
type AccountConfig struct {
	Name       string   `mapstructure:"name"`
	Exchange   string   `mapstructure:"exchange"`
	Markets    []string `mapstructure:"markets"`
	APIKey     string   `mapstructure:"api_key"`
	APISecret  string   `mapstructure:"api_secret"`
	APIPass    string   `mapstructure:"api_password"`
	UseSandbox bool     `mapstructure:"use_sandbox"`
}

// FetchConfig 控制成交记录拉取行为。
type FetchConfig struct {
	Retry     RetryConfig   `mapstructure:"retry"`
	PageLimit int           `mapstructure:"page_limit"`
	MaxPages  int           `mapstructure:"max_pages"`
	Lookback  time.Duration `mapstructure:"lookback"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// SessionConfig 控制仓位会话重建参数。
type SessionConfig struct {
	FlatEpsilon  float64       `mapstructure:"flat_epsilon"`
	GapThreshold time.Duration `mapstructure:"gap_threshold"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// ServerConfig 控制HTTP服务。
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig 控制同步循环节奏。
type SchedulerConfig struct {
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

var supportedExchanges = map[string]struct{}{
	ExchangeBitmex:     {},
	ExchangeBinanceUSD: {},
	ExchangeOKX:        {},
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if len(c.Accounts) == 0 {
		err = multierr.Append(err, errors.New("accounts 至少配置一个账户"))
	}
	seen := make(map[string]struct{}, len(c.Accounts))
	for i, account := range c.Accounts {
		name := strings.TrimSpace(account.Name)
		if name == "" {
			err = multierr.Append(err, fmt.Errorf("accounts[%d].name 不能为空", i))
		} else if _, dup := seen[name]; dup {
			err = multierr.Append(err, fmt.Errorf("accounts[%d].name 重复: %s", i, name))
		} else {
			seen[name] = struct{}{}
		}
		exchange := strings.ToLower(strings.TrimSpace(account.Exchange))
		if _, ok := supportedExchanges[exchange]; !ok {
			err = multierr.Append(err, fmt.Errorf("accounts[%d].exchange 不支持: %s", i, account.Exchange))
		}
		if len(account.Markets) == 0 {
			err = multierr.Append(err, fmt.Errorf("accounts[%d].markets 至少包含一个交易对", i))
		}
	}
	if c.Fetch.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("fetch.retry.max_attempts 必须大于0"))
	}
	if c.Fetch.Retry.MinDelay <= 0 || c.Fetch.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("fetch.retry.delay 必须为正"))
	}
	if c.Fetch.Retry.MinDelay > c.Fetch.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("fetch.retry.min_delay 不能大于 max_delay"))
	}
	if c.Fetch.PageLimit <= 0 {
		err = multierr.Append(err, errors.New("fetch.page_limit 必须大于0"))
	}
	if c.Fetch.MaxPages <= 0 {
		err = multierr.Append(err, errors.New("fetch.max_pages 必须大于0"))
	}
	if c.Fetch.Lookback <= 0 {
		err = multierr.Append(err, errors.New("fetch.lookback 必须大于0"))
	}
	if c.Session.FlatEpsilon < 0 {
		err = multierr.Append(err, errors.New("session.flat_epsilon 不能为负"))
	}
	if c.Session.GapThreshold <= 0 {
		err = multierr.Append(err, errors.New("session.gap_threshold 必须大于0"))
	}
	if c.OpenAI.Enabled {
		if c.OpenAI.APIKey == "" {
			err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
		}
		if c.OpenAI.Model == "" {
			err = multierr.Append(err, errors.New("openai.model 不能为空"))
		}
		if c.OpenAI.Timeout <= 0 {
			err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}
	if c.Scheduler.SyncInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.sync_interval 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
