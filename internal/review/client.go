package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"trade-journal/internal/config"
	"trade-journal/internal/session"
	"trade-journal/internal/stats"
)

// 提示词里包含的会话条数上限。
const defaultSessionLimit = 30

// Client 封装 OpenAI 复盘调用逻辑。
type Client struct {
	cfg    config.OpenAIConfig
	logger *zap.Logger
	sdk    *openai.Client
}

// NewClient 使用给定配置创建复盘客户端。
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// Generate 根据统计摘要与会话列表获取模型复盘。
func (c *Client) Generate(ctx context.Context, summary stats.Summary, sessions []session.Session) (Review, error) {
	if c.cfg.Model == "" {
		return Review{}, errors.New("openai model 不能为空")
	}

	prompt, err := BuildPrompt(summary, sessions, defaultSessionLimit)
	if err != nil {
		return Review{}, err
	}

	response, err := c.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Error("调用OpenAI失败", zap.Error(err))
		return Review{}, fmt.Errorf("review: 调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return Review{}, errors.New("review: OpenAI 返回结果为空")
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return Review{}, errors.New("review: OpenAI 返回内容为空")
	}

	result, err := parseReview(rawContent)
	if err != nil {
		c.logger.Error("解析模型复盘失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return Review{}, err
	}

	if err := result.Validate(); err != nil {
		return Review{}, err
	}

	c.logger.Info("复盘生成成功",
		zap.String("grade", result.Grade),
		zap.Int("suggestions", len(result.Suggestions)),
	)

	return result, nil
}

func parseReview(content string) (Review, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return Review{}, err
	}

	var result Review
	if err = json.Unmarshal(payload, &result); err != nil {
		return Review{}, fmt.Errorf("review: 解析复盘JSON失败: %w", err)
	}

	return result, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("review: 模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
