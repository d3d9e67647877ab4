package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/airside-ops/apron/pkg/models"
)

func TestRenderMarkdown(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	report := &models.FinalReport{
		SessionID:    "s-report",
		ScenarioType: "oil_spill",
		EventSummary: "oil_spill incident, flight MU2392, at 217",
		RiskAssessment: &models.RiskAssessment{
			Level:            "HIGH",
			Score:            95,
			RulesTriggered:   []string{"fuel_continuous_engine_running"},
			ImmediateActions: []string{"通知消防到场待命", "隔离事发区域并设置警戒线"},
			Guardrails:       &models.Guardrails{RequiresHumanApproval: true},
		},
		Timeline: []models.TimelineEntry{
			{Timestamp: base.Add(time.Minute), Action: "assess_risk", Observation: "risk level HIGH (score 95)", Success: true},
			{Timestamp: base.Add(2 * time.Minute), Action: "estimate_cleanup_time", Observation: "no matching estimate", Success: false},
		},
		Checklist: []models.ChecklistItem{
			{Key: "flight_no", Name: "航班号", Collected: true, Value: "MU2392"},
			{Key: "continuous", Name: "是否持续泄漏", Collected: true},
			{Key: "leak_size", Name: "泄漏量", Collected: false},
		},
		UnitsNotified: []models.Notification{
			{Department: "fire", Priority: "immediate", Timestamp: base.Add(3 * time.Minute)},
		},
		Impact: models.OperationalImpact{
			AffectedStands:    []string{"216", "218"},
			AffectedFlights:   3,
			TotalDelayMinutes: 45,
		},
		Recommendations: []string{"通知消防到场待命", "恢复运行前需人工批准"},
		GeneratedAt:     base,
	}

	md := RenderMarkdown(report)

	assert.True(t, strings.HasPrefix(md, "# 机坪事件处置报告\n"))
	for _, section := range []string{
		"## 事件概要",
		"## 风险评估",
		"## 处置时间线",
		"## 信息核对清单",
		"## 通知单位",
		"## 运行影响",
		"## 处置建议",
	} {
		assert.Contains(t, md, section)
	}

	assert.Contains(t, md, "- 生成时间：2026-03-14 09:30:00")
	assert.Contains(t, md, "- 等级：HIGH（95 分）")
	assert.Contains(t, md, "- 触发规则：fuel_continuous_engine_running")
	assert.Contains(t, md, "- 立即措施：通知消防到场待命；隔离事发区域并设置警戒线")
	assert.Contains(t, md, "- 该等级的后续处置需人工批准")

	assert.Contains(t, md, "09:31:00 assess_risk：risk level HIGH (score 95)")
	assert.Contains(t, md, "estimate_cleanup_time：no matching estimate（失败）")

	assert.Contains(t, md, "- [x] 航班号：MU2392")
	assert.Contains(t, md, "- [x] 是否持续泄漏\n")
	assert.Contains(t, md, "- [ ] 泄漏量（未收集）")

	assert.Contains(t, md, "- 消防（immediate）09:33:00")

	assert.Contains(t, md, "- 受影响机位：216、218")
	assert.Contains(t, md, "- 受影响滑行道：无")
	assert.Contains(t, md, "- 受影响跑道：无")
	assert.Contains(t, md, "- 受影响航班：3 班，预计总延误 45 分钟")

	assert.Contains(t, md, "1. 通知消防到场待命")
	assert.Contains(t, md, "2. 恢复运行前需人工批准")
}

func TestRenderMarkdownMinimal(t *testing.T) {
	report := &models.FinalReport{
		SessionID:    "s-min",
		ScenarioType: "oil_spill",
		EventSummary: "oil_spill incident",
		GeneratedAt:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	md := RenderMarkdown(report)

	assert.Contains(t, md, "## 事件概要")
	assert.Contains(t, md, "## 运行影响")
	assert.Contains(t, md, "- 受影响机位：无")
	assert.Contains(t, md, "- 受影响航班：0 班，预计总延误 0 分钟")

	assert.NotContains(t, md, "## 风险评估")
	assert.NotContains(t, md, "## 处置时间线")
	assert.NotContains(t, md, "## 信息核对清单")
	assert.NotContains(t, md, "## 通知单位")
	assert.NotContains(t, md, "## 处置建议")
}

func TestAnswerSummary(t *testing.T) {
	state := models.NewState("s-sum", "oil_spill")
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}
	state.NotificationsSent = []models.Notification{
		{Department: "fire", Priority: "immediate"},
		{Department: "fire", Priority: "urgent"},
		{Department: "maintenance", Priority: "normal"},
	}
	state.FlightImpactPrediction = &models.FlightImpactPrediction{
		Statistics: models.ImpactStatistics{Total: 3, TotalDelayMinutes: 45},
	}

	got := answerSummary(state)

	assert.Contains(t, got, "处置流程已完成。")
	assert.Contains(t, got, "风险等级 HIGH（95 分）")
	assert.Contains(t, got, "已通知：消防、机务")
	assert.NotContains(t, got, "消防、消防")
	assert.Contains(t, got, "受影响航班 3 班，预计总延误 45 分钟")
	assert.Contains(t, got, "处置报告已生成")
}

func TestAnswerSummaryBare(t *testing.T) {
	state := models.NewState("s-bare", "oil_spill")
	got := answerSummary(state)
	assert.Equal(t, "处置流程已完成。处置报告已生成，可通过报告接口查阅。", got)
}

func TestDepartmentLabel(t *testing.T) {
	assert.Equal(t, "消防", departmentLabel("fire"))
	assert.Equal(t, "塔台", departmentLabel("atc"))
	assert.Equal(t, "ops", departmentLabel("ops"))
}
