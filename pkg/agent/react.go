package agent

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// parsedReply is the structured form of one model reply in the reasoning
// format.
type parsedReply struct {
	Thought string

	HasAction   bool
	Action      string
	ActionInput string // raw text, decoded later

	IsFinal     bool
	FinalAnswer string

	Malformed bool

	// Found tracks which sections were detected, for feedback.
	Found map[string]bool
}

// Mid-line detection: a section keyword after a sentence boundary. Replies
// are Chinese prose with English keywords, so both punctuation families
// count as boundaries.
var (
	midlineActionPattern      = regexp.MustCompile(`[.!?。！？][\x60\s*]*Action:`)
	midlineFinalAnswerPattern = regexp.MustCompile(`[.!?。！？][\x60\s*]*Final Answer:`)
	midlineActionInputPattern = regexp.MustCompile(`[.!?。！？][\x60\s*]*Action Input:`)

	toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

	recoverActionColonPattern = regexp.MustCompile(`(?i)\bAction:`)
	recoverActionWordPattern  = regexp.MustCompile(`(?i)\bAction(?:\s|$)`)
	recoverActionInputPattern = regexp.MustCompile(`(?i)Action Input:`)
)

// parseReply parses a model reply into sections. The parser is forgiving:
// it tolerates markdown emphasis, fenced replies, keywords dropped mid
// sentence, and an Action Input whose Action line went missing, before
// declaring the reply malformed.
func parseReply(text string) *parsedReply {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = stripFence(text)
	}
	if text == "" {
		return &parsedReply{Malformed: true, Found: map[string]bool{}}
	}

	sections := extractSections(text)
	found := map[string]bool{
		"thought":      sections["thought"] != nil,
		"action":       sections["action"] != nil,
		"action_input": sections["action_input"] != nil,
		"final_answer": sections["final_answer"] != nil,
	}

	action := strings.TrimSpace(deref(sections["action"]))
	action = strings.TrimSpace(strings.Trim(action, "`*"))

	// An action wins over a final answer: nothing legitimate follows a
	// final answer, so a reply carrying both is still mid-investigation.
	if action != "" {
		return &parsedReply{
			HasAction:   true,
			Thought:     deref(sections["thought"]),
			Action:      action,
			ActionInput: deref(sections["action_input"]),
			Found:       found,
		}
	}

	if fa := strings.TrimSpace(deref(sections["final_answer"])); fa != "" {
		return &parsedReply{
			IsFinal:     true,
			Thought:     deref(sections["thought"]),
			FinalAnswer: fa,
			Found:       found,
		}
	}

	return &parsedReply{
		Malformed: true,
		Thought:   deref(sections["thought"]),
		Found:     found,
	}
}

// extractSections walks the reply line by line, tracking which section is
// being accumulated.
func extractSections(text string) map[string]*string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	parsed := map[string]*string{
		"thought":      nil,
		"action":       nil,
		"action_input": nil,
		"final_answer": nil,
	}

	var currentSection string
	var contentLines []string
	found := map[string]bool{}

	for _, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		if line == "" && currentSection == "" {
			continue
		}

		// A hallucinated observation means the model kept simulating the
		// loop; everything after it is noise.
		if strings.HasPrefix(line, "Observation:") {
			finalizeSection(parsed, currentSection, contentLines)
			break
		}

		switch {
		case isSectionHeader(line, "final_answer", found):
			if currentSection == "thought" && hasMidlineFinalAnswer(line) {
				if loc := midlineFinalAnswerPattern.FindStringIndex(line); loc != nil {
					if before := strings.TrimSpace(line[:boundaryCut(line, loc)]); before != "" {
						contentLines = append(contentLines, before)
					}
				}
			}
			finalizeSection(parsed, currentSection, contentLines)
			currentSection = "final_answer"
			found["final_answer"] = true
			contentLines = []string{sectionContent(line, "Final Answer:")}

		case isSectionHeader(line, "thought", found):
			finalizeSection(parsed, currentSection, contentLines)
			currentSection = "thought"
			found["thought"] = true
			if !strings.Contains(line, "Thought:") {
				// Bare "Thought" header, content follows on later lines.
				contentLines = []string{}
				continue
			}
			thought := sectionContent(line, "Thought:")
			switch {
			case hasMidlineFinalAnswer(thought):
				loc := midlineFinalAnswerPattern.FindStringIndex(thought)
				cut := boundaryCut(thought, loc)
				setSection(parsed, "thought", strings.TrimSpace(thought[:cut]))
				rest := thought[cut:]
				if idx := strings.Index(rest, "Final Answer:"); idx != -1 {
					setSection(parsed, "final_answer", strings.TrimSpace(rest[idx+len("Final Answer:"):]))
					found["final_answer"] = true
				}
				currentSection = "final_answer"
				contentLines = []string{deref(parsed["final_answer"])}
			case hasMidlineAction(thought):
				loc := midlineActionPattern.FindStringIndex(thought)
				cut := boundaryCut(thought, loc)
				setSection(parsed, "thought", strings.TrimSpace(thought[:cut]))
				rest := thought[cut:]
				if idx := strings.Index(rest, "Action:"); idx != -1 {
					setSection(parsed, "action", strings.TrimSpace(rest[idx+len("Action:"):]))
					found["action"] = true
				}
				currentSection = ""
				contentLines = nil
			default:
				contentLines = []string{thought}
			}

		case isSectionHeader(line, "action", found):
			finalizeSection(parsed, currentSection, contentLines)
			currentSection = "action"
			found["action"] = true
			// A fresh action reopens the input slot.
			delete(found, "action_input")
			contentLines = []string{sectionContent(line, "Action:")}

		case isSectionHeader(line, "action_input", found):
			finalizeSection(parsed, currentSection, contentLines)
			currentSection = "action_input"
			found["action_input"] = true
			contentLines = []string{sectionContent(line, "Action Input:")}

		default:
			if currentSection == "" {
				continue
			}
			if currentSection == "thought" && hasMidlineFinalAnswer(line) {
				if loc := midlineFinalAnswerPattern.FindStringIndex(line); loc != nil {
					cut := boundaryCut(line, loc)
					if before := strings.TrimSpace(line[:cut]); before != "" {
						contentLines = append(contentLines, before)
					}
					finalizeSection(parsed, currentSection, contentLines)
					rest := line[cut:]
					if idx := strings.Index(rest, "Final Answer:"); idx != -1 {
						setSection(parsed, "final_answer", strings.TrimSpace(rest[idx+len("Final Answer:"):]))
						found["final_answer"] = true
						currentSection = "final_answer"
						contentLines = []string{deref(parsed["final_answer"])}
					}
					continue
				}
			}
			contentLines = append(contentLines, line)
		}
	}
	finalizeSection(parsed, currentSection, contentLines)

	// Action Input without Action: backtrack for a tool name the header
	// detection missed.
	if parsed["action_input"] != nil && parsed["action"] == nil {
		if recovered := recoverMissingAction(text); recovered != "" {
			setSection(parsed, "action", recovered)
		}
	}

	return parsed
}

// isSectionHeader applies tiered detection: exact prefix, markdown-wrapped
// prefix, then mid-line after a sentence boundary.
func isSectionHeader(line, sectionType string, found map[string]bool) bool {
	if line == "" {
		return false
	}
	// First final answer wins.
	if sectionType == "final_answer" && found["final_answer"] {
		return false
	}

	stripped := strings.TrimLeft(line, "#*` ")
	switch sectionType {
	case "thought":
		if strings.HasPrefix(stripped, "Thought:") || stripped == "Thought" {
			return true
		}
	case "action":
		if strings.HasPrefix(stripped, "Action:") {
			return true
		}
	case "action_input":
		if strings.HasPrefix(stripped, "Action Input:") {
			return true
		}
	case "final_answer":
		if strings.HasPrefix(stripped, "Final Answer:") {
			return true
		}
	}

	if sectionType == "final_answer" {
		if strings.HasPrefix(stripped, "Thought") || strings.HasPrefix(stripped, "Action") {
			return false
		}
		return strings.Contains(line, "Final Answer:") && midlineFinalAnswerPattern.MatchString(line)
	}
	if sectionType == "action" && strings.Contains(line, "Action:") {
		return midlineActionPattern.MatchString(line)
	}
	if sectionType == "action_input" && strings.Contains(line, "Action Input:") {
		return found["action"] && midlineActionInputPattern.MatchString(line)
	}
	return false
}

// boundaryCut returns the index just past the sentence-boundary rune that
// opens a midline match. The Chinese boundary runes are multi-byte.
func boundaryCut(s string, loc []int) int {
	_, size := utf8.DecodeRuneInString(s[loc[0]:])
	return loc[0] + size
}

func hasMidlineAction(text string) bool {
	return strings.Contains(text, "Action:") && midlineActionPattern.MatchString(text)
}

func hasMidlineFinalAnswer(text string) bool {
	return strings.Contains(text, "Final Answer:") && midlineFinalAnswerPattern.MatchString(text)
}

// sectionContent extracts the text after the header keyword on the same
// line.
func sectionContent(line, prefix string) string {
	idx := strings.Index(line, prefix)
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(line[idx+len(prefix):])
}

func finalizeSection(parsed map[string]*string, section string, contentLines []string) {
	if section == "" || contentLines == nil {
		return
	}
	content := strings.TrimSpace(strings.Join(contentLines, "\n"))
	if content != "" || parsed[section] == nil {
		parsed[section] = &content
	}
}

func setSection(parsed map[string]*string, section, value string) {
	parsed[section] = &value
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// recoverMissingAction searches backwards from "Action Input:" for a tool
// name that the section detection missed.
func recoverMissingAction(text string) string {
	loc := recoverActionInputPattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	before := text[:loc[0]]

	for _, pattern := range []*regexp.Regexp{recoverActionColonPattern, recoverActionWordPattern} {
		matches := pattern.FindAllStringIndex(before, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		candidate := strings.TrimSpace(before[last[1]:])
		if validated := validToolName(candidate); validated != "" {
			return validated
		}
	}
	return ""
}

// validToolName accepts the first line of text when it looks like a
// registered tool identifier.
func validToolName(text string) string {
	first := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	first = strings.Trim(first, "`*")
	if toolNamePattern.MatchString(first) {
		return first
	}
	return ""
}

// decodeActionInput turns the raw Action Input text into the tool input
// map: a JSON object is used as-is, a JSON scalar or bare string becomes
// {"value": ...}, and an empty input means no arguments.
func decodeActionInput(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = stripFence(raw)
	}
	// Markdown emphasis and inline code around the payload carry no
	// meaning; valid JSON never starts or ends with these runes.
	raw = strings.TrimSpace(strings.Trim(raw, "`*"))
	if raw == "" || raw == "{}" || raw == "null" {
		return map[string]any{}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj
	}
	var scalar any
	if err := json.Unmarshal([]byte(raw), &scalar); err == nil {
		if scalar == nil {
			return map[string]any{}
		}
		return map[string]any{"value": scalar}
	}
	return map[string]any{"value": raw}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// replyFeedback describes what was wrong with an unparseable reply, for
// the retry prompt. A reply is only malformed when no usable action or
// final answer came out, so the cases cover an empty Action line, an input
// whose Action line went missing, thought-only replies, and free prose.
func replyFeedback(p *parsedReply) string {
	found := p.Found
	var specific string
	switch {
	case found["action"]:
		specific = "回复中的 Action: 段落没有可用的工具名称。Action: 后必须紧跟可用工具列表中的名称。"
	case found["action_input"]:
		specific = "回复中有 Action Input: 但缺少 Action:。必须先用 Action: 指明要调用的工具。"
	case found["thought"]:
		specific = "回复只包含 Thought:。推理之后必须给出 Action: 加 Action Input:，或给出 Final Answer:。"
	default:
		specific = "回复中未检测到任何规定的推理格式段落。必须使用 Thought:、Action:、Action Input:、Final Answer: 这些关键字。"
	}
	return specific + `
请严格使用如下结构之一：

Thought: 推理内容
Action: 工具名称
Action Input: JSON 参数

或

Thought: 推理内容
Final Answer: 处置总结`
}
