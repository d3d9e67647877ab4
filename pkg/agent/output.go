package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/tools"
)

// departmentLabels maps department codes to their report names.
var departmentLabels = map[string]string{
	"fire":        "消防",
	"maintenance": "机务",
	"atc":         "塔台",
	"airfield":    "场务",
	"medical":     "医疗",
	"security":    "安保",
}

func departmentLabel(code string) string {
	if label, ok := departmentLabels[code]; ok {
		return label
	}
	return code
}

// runOutputGenerator closes out the procedure. A last compliance pass picks
// up the transition the report step unlocked (generate_report is not a
// critical tool), the report is materialised if the model skipped the tool,
// and the final answer gets a deterministic closing summary. Safe to
// re-enter on a later turn; it then changes nothing.
func (e *Engine) runOutputGenerator(ctx context.Context, sc *models.Scenario, state *models.State, emit EmitFunc) string {
	res := ValidateFSM(sc, state)
	if res.InferredState != state.FSMState {
		e.logger.Info("Response phase advanced",
			"session_id", state.SessionID,
			"from", state.FSMState,
			"to", res.InferredState)
		state.FSMState = res.InferredState
	}

	if state.FinalReport == nil {
		// The model declared completion without calling generate_report.
		state.FinalReport = tools.BuildReport(state, sc, e.now())
		e.logger.Info("Report materialised without generate_report call",
			"session_id", state.SessionID)
	}

	summary := answerSummary(state)
	switch {
	case state.FinalAnswer == "":
		state.FinalAnswer = summary
	case !strings.HasSuffix(state.FinalAnswer, summary):
		state.FinalAnswer = state.FinalAnswer + "\n\n" + summary
	}
	state.IsComplete = true
	state.AwaitingUser = true

	u := events.NewNodeUpdate(events.NodeOutputGenerator, state.SessionID)
	u.FSMState = state.FSMState
	u.IsComplete = true
	u.FinalAnswer = state.FinalAnswer
	emit(u)
	return ""
}

// answerSummary condenses the outcome into the plain-text closing lines.
func answerSummary(state *models.State) string {
	var sb strings.Builder
	sb.WriteString("处置流程已完成。")
	if r := state.RiskAssessment; r != nil {
		fmt.Fprintf(&sb, "风险等级 %s（%d 分）。", r.Level, r.Score)
	}
	if len(state.NotificationsSent) > 0 {
		seen := map[string]bool{}
		var units []string
		for _, n := range state.NotificationsSent {
			label := departmentLabel(n.Department)
			if !seen[label] {
				seen[label] = true
				units = append(units, label)
			}
		}
		fmt.Fprintf(&sb, "已通知：%s。", strings.Join(units, "、"))
	}
	if p := state.FlightImpactPrediction; p != nil && p.Statistics.Total > 0 {
		fmt.Fprintf(&sb, "受影响航班 %d 班，预计总延误 %d 分钟。",
			p.Statistics.Total, p.Statistics.TotalDelayMinutes)
	}
	sb.WriteString("处置报告已生成，可通过报告接口查阅。")
	return sb.String()
}

// RenderMarkdown renders the structured report in the fixed section order
// served by the markdown report endpoint.
func RenderMarkdown(report *models.FinalReport) string {
	var sb strings.Builder
	sb.WriteString("# 机坪事件处置报告\n\n")
	fmt.Fprintf(&sb, "- 会话：%s\n", report.SessionID)
	fmt.Fprintf(&sb, "- 场景：%s\n", report.ScenarioType)
	fmt.Fprintf(&sb, "- 生成时间：%s\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))

	sb.WriteString("\n## 事件概要\n\n")
	sb.WriteString(report.EventSummary + "\n")

	if r := report.RiskAssessment; r != nil {
		sb.WriteString("\n## 风险评估\n\n")
		fmt.Fprintf(&sb, "- 等级：%s（%d 分）\n", r.Level, r.Score)
		if len(r.RulesTriggered) > 0 {
			fmt.Fprintf(&sb, "- 触发规则：%s\n", strings.Join(r.RulesTriggered, "、"))
		}
		if r.RiskFloorApplied != "" {
			fmt.Fprintf(&sb, "- 保底等级：%s\n", r.RiskFloorApplied)
		}
		if len(r.ImmediateActions) > 0 {
			fmt.Fprintf(&sb, "- 立即措施：%s\n", strings.Join(r.ImmediateActions, "；"))
		}
		if r.Guardrails != nil && r.Guardrails.RequiresHumanApproval {
			sb.WriteString("- 该等级的后续处置需人工批准\n")
		}
	}

	if len(report.Timeline) > 0 {
		sb.WriteString("\n## 处置时间线\n\n")
		for _, t := range report.Timeline {
			line := fmt.Sprintf("- %s %s：%s", t.Timestamp.Format("15:04:05"), t.Action, t.Observation)
			if !t.Success {
				line += "（失败）"
			}
			sb.WriteString(line + "\n")
		}
	}

	if len(report.Checklist) > 0 {
		sb.WriteString("\n## 信息核对清单\n\n")
		for _, item := range report.Checklist {
			switch {
			case item.Collected && item.Value != "":
				fmt.Fprintf(&sb, "- [x] %s：%s\n", item.Name, item.Value)
			case item.Collected:
				fmt.Fprintf(&sb, "- [x] %s\n", item.Name)
			default:
				fmt.Fprintf(&sb, "- [ ] %s（未收集）\n", item.Name)
			}
		}
	}

	if len(report.UnitsNotified) > 0 {
		sb.WriteString("\n## 通知单位\n\n")
		for _, n := range report.UnitsNotified {
			fmt.Fprintf(&sb, "- %s（%s）%s\n",
				departmentLabel(n.Department), n.Priority, n.Timestamp.Format("15:04:05"))
		}
	}

	sb.WriteString("\n## 运行影响\n\n")
	fmt.Fprintf(&sb, "- 受影响机位：%s\n", joinOrNone(report.Impact.AffectedStands))
	fmt.Fprintf(&sb, "- 受影响滑行道：%s\n", joinOrNone(report.Impact.AffectedTaxiways))
	fmt.Fprintf(&sb, "- 受影响跑道：%s\n", joinOrNone(report.Impact.AffectedRunways))
	fmt.Fprintf(&sb, "- 受影响航班：%d 班，预计总延误 %d 分钟\n",
		report.Impact.AffectedFlights, report.Impact.TotalDelayMinutes)

	if len(report.Recommendations) > 0 {
		sb.WriteString("\n## 处置建议\n\n")
		for i, rec := range report.Recommendations {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, rec)
		}
	}
	return sb.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "无"
	}
	return strings.Join(items, "、")
}
