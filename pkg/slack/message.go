package slack

import (
	"fmt"
	"strings"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var departmentLabel = map[string]string{
	"fire":        "消防",
	"maintenance": "机务",
	"atc":         "塔台",
	"airfield":    "场务",
	"medical":     "医疗",
	"security":    "安保",
}

var scenarioLabel = map[string]string{
	"oil_spill":   "油液泄漏",
	"fod":         "跑道异物",
	"bird_strike": "鸟击",
}

var priorityLabel = map[string]string{
	"immediate": "立即",
	"normal":    "常规",
}

var statusEmoji = map[string]string{
	"completed": ":white_check_mark:",
	"halted":    ":warning:",
}

var statusLabel = map[string]string{
	"completed": "处置流程已完成",
	"halted":    "处置流程中断，需人工介入",
}

// SessionMarker is the text stamped on every post of a session so
// follow-ups can locate the thread through channel history.
func SessionMarker(sessionID string) string {
	return "[" + sessionID + "]"
}

func label(m map[string]string, key string) string {
	if v := m[key]; v != "" {
		return v
	}
	return key
}

func sessionURL(sessionID, dashboardURL string) string {
	return fmt.Sprintf("%s/sessions/%s", dashboardURL, sessionID)
}

// detailLine is the second line of every post: session marker, scenario,
// and whatever incident facts are known.
func detailLine(sessionID, scenarioType, position, riskLevel string) string {
	parts := []string{
		"事件 " + SessionMarker(sessionID),
		label(scenarioLabel, scenarioType),
	}
	if position != "" {
		parts = append(parts, "机位 "+position)
	}
	if riskLevel != "" {
		parts = append(parts, "风险 "+riskLevel)
	}
	return strings.Join(parts, " · ")
}

// BuildDepartmentMessage creates Block Kit blocks for one department
// dispatch.
func BuildDepartmentMessage(input DepartmentNotification, dashboardURL string) []goslack.Block {
	emoji := ":bell:"
	if input.Priority == "immediate" {
		emoji = ":rotating_light:"
	}
	text := fmt.Sprintf("%s *%s部门已调度* — %s响应\n%s",
		emoji,
		label(departmentLabel, input.Department),
		label(priorityLabel, input.Priority),
		detailLine(input.SessionID, input.ScenarioType, input.Position, input.RiskLevel))

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
	if dashboardURL != "" {
		blocks = append(blocks, linkBlock(input.SessionID, dashboardURL, "查看会话详情"))
	}
	return blocks
}

// BuildTerminalMessage creates Block Kit blocks for a terminal session
// notification.
func BuildTerminalMessage(input TerminalNotification, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[input.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	head := fmt.Sprintf("%s *%s*\n%s",
		emoji,
		label(statusLabel, input.Status),
		detailLine(input.SessionID, input.ScenarioType, "", input.RiskLevel))

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, head, false, false),
			nil, nil,
		),
	}
	if input.Summary != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.Summary), false, false),
			nil, nil,
		))
	}

	if dashboardURL != "" {
		buttonText := "查看会话详情"
		if input.Status == "completed" {
			buttonText = "查看处置报告"
		}
		blocks = append(blocks, linkBlock(input.SessionID, dashboardURL, buttonText))
	}
	return blocks
}

func linkBlock(sessionID, dashboardURL, buttonText string) goslack.Block {
	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, buttonText, false, false))
	btn.URL = sessionURL(sessionID, dashboardURL)
	return goslack.NewActionBlock("", btn)
}

func truncateForSlack(text string) string {
	if utf8.RuneCountInString(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBlockTextLength]) + "\n\n_……（内容过长已截断，完整报告见控制台）_"
}
