package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/tools"
)

// maxScratchpadSteps bounds how many past reasoning steps are replayed into
// the prompt. Older steps are summarised away; their effects live on in the
// state summary.
const maxScratchpadSteps = 8

// maxPlanRunes bounds how much of a disposal-plan document is replayed
// into the prompt.
const maxPlanRunes = 3000

// FormatToolCatalog renders the numbered tool list for the reasoning prompt.
func FormatToolCatalog(toolset []*tools.Tool) string {
	if len(toolset) == 0 {
		return "## 可用工具\n\n无可用工具。\n"
	}
	var sb strings.Builder
	sb.WriteString("## 可用工具\n\n")
	for i, t := range toolset {
		sb.WriteString(fmt.Sprintf("%d. **%s**：%s\n", i+1, t.Name, t.Description))
		if summary := t.SchemaSummary(); summary == "{}" {
			sb.WriteString("   参数：无\n")
		} else {
			sb.WriteString("   参数：" + summary + "\n")
		}
	}
	return sb.String()
}

// FormatStateSummary renders the session state the model reasons over: the
// checklist with collected values, enrichment results, completed mandatory
// actions, and the current response phase.
func FormatStateSummary(sc *models.Scenario, state *models.State) string {
	var sb strings.Builder
	sb.WriteString("## 当前事件状态\n\n")
	sb.WriteString("- 场景类型：" + state.ScenarioType + "\n")
	sb.WriteString("- 当前阶段：" + phaseLabel(sc, state.FSMState) + "\n\n")

	writeChecklistSection(&sb, sc, state)
	writeRiskSection(&sb, state.RiskAssessment)
	writeSpatialSection(&sb, state.SpatialAnalysis)
	writeFlightImpactSection(&sb, state.FlightImpactPrediction)
	writeMandatorySection(&sb, state.MandatoryActionsDone)

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func phaseLabel(sc *models.Scenario, fsmState string) string {
	if def := sc.FSMStateByID(fsmState); def != nil && def.Name != "" {
		return fsmState + "（" + def.Name + "）"
	}
	return fsmState
}

func writeChecklistSection(sb *strings.Builder, sc *models.Scenario, state *models.State) {
	sb.WriteString("### 信息清单\n")
	for _, key := range sc.FieldOrder {
		name := key
		if n, ok := sc.FieldNames[key]; ok && n != "" {
			name = n
		}
		if state.Checklist[key] {
			sb.WriteString("- [x] " + name + "：" + formatValue(state.Incident[key]) + "\n")
		} else {
			sb.WriteString("- [ ] " + name + "（待收集）\n")
		}
	}
	var missing []string
	for _, key := range sc.RequiredP1Keys() {
		if !state.Checklist[key] {
			name := key
			if n, ok := sc.FieldNames[key]; ok && n != "" {
				name = n
			}
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sb.WriteString("缺失的 P1 必填项：" + strings.Join(missing, "、") + "\n")
	} else {
		sb.WriteString("P1 必填信息已收集完整。\n")
	}
	sb.WriteString("\n")
}

func writeRiskSection(sb *strings.Builder, risk *models.RiskAssessment) {
	if risk == nil {
		return
	}
	sb.WriteString("### 风险评估\n")
	sb.WriteString(fmt.Sprintf("- 等级：%s（%d 分）\n", risk.Level, risk.Score))
	if len(risk.RulesTriggered) > 0 {
		sb.WriteString("- 触发规则：" + strings.Join(risk.RulesTriggered, "、") + "\n")
	}
	if risk.RiskFloorApplied != "" {
		sb.WriteString("- 保底等级：" + risk.RiskFloorApplied + "\n")
	}
	if len(risk.ImmediateActions) > 0 {
		sb.WriteString("- 立即措施：" + strings.Join(risk.ImmediateActions, "；") + "\n")
	}
	if risk.Guardrails != nil && risk.Guardrails.RequiresHumanApproval {
		sb.WriteString("- 该等级的后续处置需人工批准\n")
	}
	sb.WriteString("\n")
}

func writeSpatialSection(sb *strings.Builder, spatial *models.SpatialAnalysis) {
	if spatial == nil {
		return
	}
	sb.WriteString("### 影响区域\n")
	sb.WriteString("- 受影响机位：" + joinOrNone(spatial.AffectedStands) + "\n")
	sb.WriteString("- 受影响滑行道：" + joinOrNone(spatial.AffectedTaxiways) + "\n")
	sb.WriteString("- 受影响跑道：" + joinOrNone(spatial.AffectedRunways) + "\n")
	sb.WriteString("\n")
}

func writeFlightImpactSection(sb *strings.Builder, pred *models.FlightImpactPrediction) {
	if pred == nil {
		return
	}
	sb.WriteString("### 航班影响\n")
	sb.WriteString(fmt.Sprintf("- 影响时间窗：%s 至 %s\n",
		pred.TimeWindow.Start.Format("15:04"), pred.TimeWindow.End.Format("15:04")))
	sb.WriteString(fmt.Sprintf("- 受影响航班：%d 班，预计总延误 %d 分钟\n",
		pred.Statistics.Total, pred.Statistics.TotalDelayMinutes))
	sb.WriteString("\n")
}

func writeMandatorySection(sb *strings.Builder, done map[string]bool) {
	var keys []string
	for k, v := range done {
		if v {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)
	sb.WriteString("### 已完成的强制动作\n")
	for _, k := range keys {
		sb.WriteString("- " + k + "\n")
	}
	sb.WriteString("\n")
}

// FormatPlanReference renders the scenario's published disposal plan as
// reference material. Returns "" when no document is available.
func FormatPlanReference(doc string) string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return ""
	}
	if utf8.RuneCountInString(doc) > maxPlanRunes {
		runes := []rune(doc)
		doc = string(runes[:maxPlanRunes]) + "\n（预案文档过长，此处截断）"
	}
	var sb strings.Builder
	sb.WriteString("## 处置预案参考\n\n")
	sb.WriteString(doc)
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// FormatScratchpad replays recent reasoning steps plus any observations the
// system queued for the model (validator findings, mandatory-action
// prompts).
func FormatScratchpad(steps []models.ReasoningStep, pending []string) string {
	if len(steps) == 0 && len(pending) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## 此前的推理过程\n\n")
	if dropped := len(steps) - maxScratchpadSteps; dropped > 0 {
		sb.WriteString(fmt.Sprintf("（省略较早的 %d 轮推理）\n\n", dropped))
		steps = steps[dropped:]
	}
	for _, st := range steps {
		if st.Thought != "" {
			sb.WriteString("Thought: " + st.Thought + "\n")
		}
		if st.Action != "" {
			sb.WriteString("Action: " + st.Action + "\n")
			sb.WriteString("Action Input: " + encodeActionInput(st.ActionInput) + "\n")
		}
		if st.Observation != "" {
			sb.WriteString("Observation: " + st.Observation + "\n")
		}
		sb.WriteString("\n")
	}
	for _, p := range pending {
		sb.WriteString("Observation: " + p + "\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// FormatHistory renders the most recent conversation messages.
func FormatHistory(messages []models.Message, max int) string {
	if len(messages) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## 对话记录\n\n")
	if dropped := len(messages) - max; max > 0 && dropped > 0 {
		sb.WriteString(fmt.Sprintf("（省略较早的 %d 条对话）\n", dropped))
		messages = messages[dropped:]
	}
	for _, m := range messages {
		sb.WriteString(speakerLabel(m.Role) + "：" + m.Content + "\n")
	}
	return sb.String()
}

func speakerLabel(role string) string {
	switch role {
	case models.RoleUser:
		return "报告人"
	case models.RoleAssistant:
		return "助理"
	default:
		return "系统"
	}
}

func encodeActionInput(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "是"
		}
		return "否"
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "无"
	}
	return strings.Join(items, "、")
}
