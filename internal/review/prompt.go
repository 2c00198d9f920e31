package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"trade-journal/internal/session"
	"trade-journal/internal/stats"
)

const reviewTemplate = `
你是一位资深的加密货币交易教练。你的任务是根据交易者的仓位会话记录与统计摘要，给出客观、具体、可执行的复盘意见。

统计摘要：
{{ .SummaryJSON }}

最近的仓位会话（按时间倒序）：
{{ .SessionsJSON }}

复盘时请遵循：
1. 先看整体胜率与盈亏比，判断策略是否有正期望；
2. 对比最好与最差的会话，找出重复出现的错误模式；
3. 关注持仓时长与回撤，判断仓位管理是否合理；
4. 建议必须具体可执行，避免空泛的套话。

请严格输出唯一的 JSON 对象，格式如下：
{
  "grade": "A|B|C|D|F",          // 本阶段交易表现评级
  "summary": "...",              // 一段话总结整体表现
  "strengths": ["..."],          // 做得好的地方
  "weaknesses": ["..."],         // 需要改进的地方
  "suggestions": ["..."],        // 具体可执行的改进建议
  "risk_comment": "..."          // 风险提示
}

注意事项：
- 所有字段均需填写，suggestions 至少给出一条。
- 评价必须基于给出的数据，不要编造数据中不存在的事实。
`

var tmpl = template.Must(template.New("review").Parse(reviewTemplate))

type promptContext struct {
	SummaryJSON  string
	SessionsJSON string
}

// 会话明细里的成交列表对复盘没有增量信息，序列化前裁掉以控制提示词长度。
func trimSessions(sessions []session.Session, limit int) []session.Session {
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	trimmed := make([]session.Session, len(sessions))
	for i, s := range sessions {
		s.Trades = nil
		trimmed[i] = s
	}
	return trimmed
}

// BuildPrompt 将统计摘要与会话列表渲染成提示词字符串。
func BuildPrompt(summary stats.Summary, sessions []session.Session, limit int) (string, error) {
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("review: 序列化统计摘要失败: %w", err)
	}

	sessionsJSON, err := json.MarshalIndent(trimSessions(sessions, limit), "", "  ")
	if err != nil {
		return "", fmt.Errorf("review: 序列化会话失败: %w", err)
	}

	ctx := promptContext{
		SummaryJSON:  string(summaryJSON),
		SessionsJSON: string(sessionsJSON),
	}

	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("review: 渲染提示词失败: %w", err)
	}

	return buf.String(), nil
}
