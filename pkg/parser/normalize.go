// Package parser turns free-form controller reports into structured
// incident state: radiotelephony normalisation, entity extraction,
// scenario-scoped field filtering, checklist update, and parallel
// auto-enrichment.
package parser

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/airside-ops/apron/pkg/llm"
)

// spokenDigits maps Chinese radiotelephony digit readings to digits.
// 三四五六八 double as ordinary numerals, so only runs of two or more
// spoken digits are converted.
var spokenDigits = map[rune]rune{
	'洞': '0',
	'幺': '1',
	'两': '2',
	'三': '3',
	'四': '4',
	'五': '5',
	'六': '6',
	'拐': '7',
	'八': '8',
	'勾': '9',
}

var (
	spokenRunRE = regexp.MustCompile(`[洞幺两三四五六拐八勾]{2,}`)

	// 跑道27左 → 跑道27L, 02右跑道 → 02R跑道.
	runwaySuffixRE  = regexp.MustCompile(`(跑道\s*[0-9]{1,2})(左|右|中)`)
	runwayPrefixRE  = regexp.MustCompile(`([0-9]{1,2})(左|右|中)(跑道)`)
	fullWidthDigits = strings.NewReplacer(
		"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
		"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
		"：", ":",
	)
)

var directionLetters = map[string]string{"左": "L", "右": "R", "中": "C"}

// Runes that only occur as radiotelephony digit readings. Their presence
// forces the deep-normalisation pass even for short messages.
var spokenMarkers = []string{"洞", "幺", "拐", "勾"}

var aviationKeywords = []string{
	"跑道", "机位", "停机位", "滑行道", "联络道", "航班",
	"发动机", "泄漏", "滴漏", "漏油", "鸟击", "撞鸟", "鸟群", "FOD", "外来物",
}

// NormalizeStage1 applies the deterministic radiotelephony rewrite: spoken
// digit runs, full-width characters, and runway direction suffixes.
func NormalizeStage1(text string) string {
	out := fullWidthDigits.Replace(text)

	out = spokenRunRE.ReplaceAllStringFunc(out, func(run string) string {
		var b strings.Builder
		for _, r := range run {
			b.WriteRune(spokenDigits[r])
		}
		return b.String()
	})

	out = runwaySuffixRE.ReplaceAllStringFunc(out, func(m string) string {
		sub := runwaySuffixRE.FindStringSubmatch(m)
		return sub[1] + directionLetters[sub[2]]
	})
	out = runwayPrefixRE.ReplaceAllStringFunc(out, func(m string) string {
		sub := runwayPrefixRE.FindStringSubmatch(m)
		return sub[1] + directionLetters[sub[2]] + sub[3]
	})
	return out
}

// needsDeepNormalize reports whether the stage-2 LLM pass should run. Short
// messages with no aviation keyword and no spoken-digit marker skip it.
func needsDeepNormalize(text string) bool {
	if len([]rune(text)) >= 8 {
		return true
	}
	for _, kw := range aviationKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	for _, m := range spokenMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

const normalizeSystemPrompt = `你是民航陆空通话转写助手。把口语化的事件报告改写为标准书面形式：
- 数字读法转为阿拉伯数字（洞→0、幺→1、两→2、拐→7、勾→9）
- 跑道方位"左/右/中"写作 L/R/C（例如"跑道27左"写作"跑道27L"）
- 航班号、机位、滑行道使用标准编号，其余内容保持原意不变
只输出改写后的文本，不要任何解释。`

// normalizeShots are the few-shot pairs sent ahead of the real message.
var normalizeShots = []llm.Message{
	{Role: llm.RoleUser, Content: "东航两三勾两在幺洞幺机位报告滑油滴漏"},
	{Role: llm.RoleAssistant, Content: "东航2392在101机位报告滑油滴漏"},
	{Role: llm.RoleUser, Content: "跑道两拐左发现外来物"},
	{Role: llm.RoleAssistant, Content: "跑道27L发现外来物"},
}

// Normalizer runs the two-stage radiotelephony normalisation. A nil client
// degrades to stage 1 only.
type Normalizer struct {
	client  llm.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewNormalizer wires the deep-normalisation pass. timeout bounds the LLM
// call; zero means no bound.
func NewNormalizer(client llm.Client, timeout time.Duration, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{client: client, timeout: timeout, logger: logger.With("component", "normalizer")}
}

// Normalize returns the normalised text. The returned error reports a
// failed or timed-out deep pass; the text is then the stage-1 fallback.
func (n *Normalizer) Normalize(ctx context.Context, text string) (string, error) {
	stage1 := NormalizeStage1(text)
	if n.client == nil || !needsDeepNormalize(text) {
		return stage1, nil
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	messages := make([]llm.Message, 0, len(normalizeShots)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: normalizeSystemPrompt})
	messages = append(messages, normalizeShots...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: stage1})

	resp, err := n.client.Generate(ctx, &llm.Request{Messages: messages, Temperature: 0})
	if err != nil {
		return stage1, err
	}
	deep := strings.TrimSpace(resp.Content)
	if deep == "" || len(deep) > 4*len(stage1)+64 {
		// A degenerate rewrite is worse than none.
		n.logger.Warn("Deep normalisation produced degenerate output, keeping stage-1 text",
			"input_len", len(stage1), "output_len", len(deep))
		return stage1, nil
	}
	return deep, nil
}
