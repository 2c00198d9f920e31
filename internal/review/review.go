package review

import (
	"errors"
	"fmt"
	"strings"
)

// Review 表示大模型给出的复盘结论。
type Review struct {
	Grade       string   `json:"grade"`
	Summary     string   `json:"summary"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
	RiskComment string   `json:"risk_comment"`
}

var validGrades = map[string]struct{}{
	"A": {},
	"B": {},
	"C": {},
	"D": {},
	"F": {},
}

// Validate 校验复盘字段合法性。
func (r Review) Validate() error {
	grade := strings.ToUpper(strings.TrimSpace(r.Grade))
	if grade == "" {
		return errors.New("grade 不能为空")
	}
	if _, ok := validGrades[grade]; !ok {
		return fmt.Errorf("grade 字段取值非法: %s", r.Grade)
	}
	if strings.TrimSpace(r.Summary) == "" {
		return errors.New("summary 不能为空")
	}
	if len(r.Suggestions) == 0 {
		return errors.New("suggestions 不能为空")
	}
	return nil
}
