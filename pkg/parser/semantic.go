package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
)

// minSemanticConfidence is the acceptance threshold for LLM-extracted
// entities; anything below it is discarded.
const minSemanticConfidence = 0.8

// semanticEntity is one row of the extractor's JSON reply.
type semanticEntity struct {
	Field      string  `json:"field"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

const semanticSystemPrompt = `你是机坪事件信息抽取器。从报告文本中抽取给定字段的值。
输出严格的 JSON 数组，每个元素为 {"field": 字段名, "value": 值, "confidence": 0到1的置信度}。
只抽取文本明确支持的字段；枚举字段的值必须取自给定选项；不确定时给低置信度。
不要输出 JSON 以外的任何内容。`

// semanticFieldCatalog renders the scenario's declared fields for the
// extraction prompt, one line per field with type and options.
func semanticFieldCatalog(sc *models.Scenario) string {
	var b strings.Builder
	fields := append(append([]models.ChecklistField{}, sc.P1Fields...), sc.P2Fields...)
	byKey := make(map[string]models.ChecklistField, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f
	}
	for _, key := range sc.FieldOrder {
		f, ok := byKey[key]
		if !ok {
			continue
		}
		name := sc.FieldNames[key]
		fmt.Fprintf(&b, "- %s (%s, %s", key, name, f.Type)
		if len(f.Options) > 0 {
			fmt.Fprintf(&b, ", 选项: %s", strings.Join(f.Options, "/"))
		}
		b.WriteString(")\n")
	}
	return b.String()
}

// extractSemantic asks the LLM for field values and keeps those at or above
// the confidence threshold. A nil client returns an empty map.
func (p *Parser) extractSemantic(ctx context.Context, sc *models.Scenario, text string) (map[string]any, error) {
	if p.llm == nil {
		return map[string]any{}, nil
	}

	user := fmt.Sprintf("字段定义：\n%s\n报告文本：%s", semanticFieldCatalog(sc), text)
	resp, err := p.llm.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: semanticSystemPrompt},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var entities []semanticEntity
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &entities); err != nil {
		return nil, fmt.Errorf("parsing semantic extraction reply: %w", err)
	}

	out := make(map[string]any, len(entities))
	for _, e := range entities {
		if e.Field == "" || e.Value == nil {
			continue
		}
		if e.Confidence < minSemanticConfidence {
			p.logger.Debug("Discarded low-confidence entity",
				"field", e.Field, "confidence", e.Confidence)
			continue
		}
		out[e.Field] = e.Value
	}
	return out, nil
}

// stripCodeFence unwraps a ```json fenced block if the model added one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 && !strings.HasPrefix(s, "\n") {
		// Drop the language tag on the opening fence.
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "\n")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
