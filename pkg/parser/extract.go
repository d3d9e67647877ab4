package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/airside-ops/apron/pkg/models"
)

// airlineIATA maps spoken Chinese airline names to IATA designators for
// the canonical flight number.
var airlineIATA = map[string]string{
	"东航": "MU",
	"国航": "CA",
	"南航": "CZ",
	"川航": "3U",
	"厦航": "MF",
	"海航": "HU",
}

var (
	// ICAO 3-letter first so CES2876 is not split as CE+S2876.
	flightNoRE = regexp.MustCompile(`\b(?:[A-Z]{3}|[A-Z]{2}|[A-Z][0-9]|[0-9][A-Z])[0-9]{3,4}\b`)

	airlineFlightRE = regexp.MustCompile(`(东航|国航|南航|川航|厦航|海航)\s*((?:[A-Z]{2}|[A-Z][0-9]|[0-9][A-Z])?[0-9]{3,4})`)
	bareDigitsRE    = regexp.MustCompile(`^[0-9]{3,4}$`)

	standAfterRE  = regexp.MustCompile(`(?:停机位|机位)\s*([0-9]{1,3}[A-Z]?)`)
	standBeforeRE = regexp.MustCompile(`([0-9]{1,3}[A-Z]?)\s*号?(?:停机位|机位)`)
	runwayAfterRE = regexp.MustCompile(`跑道\s*([0-9]{2}[LRC]?)`)
	runwayBeforRE = regexp.MustCompile(`([0-9]{2}[LRC])\s*跑道`)
	taxiAfterRE   = regexp.MustCompile(`(?:滑行道|联络道)\s*([A-Z][0-9]{0,2})`)
	taxiBeforeRE  = regexp.MustCompile(`([A-Z][0-9]{1,2})\s*(?:滑行道|联络道)`)

	clockRE = regexp.MustCompile(`([01]?[0-9]|2[0-3])[:点时]([0-5][0-9])分?`)

	fodSizeRE = regexp.MustCompile(`(?:约|大约|大概)?\s*([0-9]+(?:\.[0-9]+)?)\s*(毫米|mm|厘米|cm|公分)`)
)

// enumPattern maps ordered substring alternatives onto one enum value.
// Order within a list matters: the first matching row wins, so rows whose
// patterns contain another row's pattern come first (未关车 before 关车).
type enumPattern struct {
	value    string
	patterns []string
}

func matchEnum(text string, rows []enumPattern) (string, bool) {
	for _, row := range rows {
		for _, p := range row.patterns {
			if strings.Contains(text, p) {
				return row.value, true
			}
		}
	}
	return "", false
}

var fluidTypeRows = []enumPattern{
	{"FUEL", []string{"燃油", "航油", "航空煤油"}},
	{"HYDRAULIC", []string{"液压油"}},
	{"OIL", []string{"润滑油", "滑油", "机油"}},
}

var engineStatusRows = []enumPattern{
	{"RUNNING", []string{"未关车", "仍在运转", "运转中", "正在运转", "发动机运行", "引擎运转"}},
	{"APU", []string{"APU"}},
	{"STOPPED", []string{"已关车", "已停车", "关车", "发动机关闭", "已关闭"}},
}

var continuousFalseRows = []string{"已停止滴漏", "已停止泄漏", "停止滴漏", "停止泄漏", "不再泄漏", "已止漏"}
var continuousTrueRows = []string{"持续泄漏", "持续滴漏", "仍在泄漏", "仍在滴漏", "不断泄漏", "一直在漏", "持续漏"}

var leakSizeRows = []enumPattern{
	{"SMALL", []string{"少量", "轻微", "小范围", "小面积"}},
	{"LARGE", []string{"大量", "大面积", "大范围", "严重泄漏"}},
	{"MEDIUM", []string{"中量", "中等"}},
}

var birdPhaseRows = []enumPattern{
	{"TAKEOFF_ROLL", []string{"起飞滑跑"}},
	{"LANDING_ROLL", []string{"着陆滑跑", "落地滑跑"}},
	{"INITIAL_CLIMB", []string{"初始爬升", "起飞爬升", "离地后"}},
	{"APPROACH", []string{"进近", "五边"}},
	{"TAKEOFF_ROLL", []string{"滑跑"}},
	{"TAXI", []string{"滑行途中", "滑行阶段"}},
	{"PARKED", []string{"停场", "停机状态"}},
}

var impactAreaRows = []enumPattern{
	{"ENGINE", []string{"左发", "右发", "双发", "发动机", "引擎", "吸入"}},
	{"WINDSHIELD", []string{"风挡", "风档"}},
	{"RADOME", []string{"雷达罩", "机头罩"}},
	{"WING", []string{"机翼", "翼前缘"}},
	{"LANDING_GEAR", []string{"起落架"}},
	{"FUSELAGE", []string{"机身"}},
}

// Stronger evidence wins when a report carries several markers, so 疑似
// plus 异响 still classifies as noise/vibration.
var evidenceRows = []enumPattern{
	{"REMAINS_FOUND", []string{"鸟尸", "残骸", "血迹", "羽毛"}},
	{"ABNORMAL_NOISE_VIBRATION", []string{"异响", "振动", "抖动", "巨响"}},
	{"VISUAL_CONFIRMED", []string{"目视", "目击", "看到撞鸟", "确认撞击"}},
	{"SUSPECTED", []string{"疑似", "怀疑", "可能撞"}},
}

var birdInfoRows = []enumPattern{
	{"FLOCK", []string{"鸟群", "群鸟", "一群", "成群"}},
	{"SINGLE_LARGE", []string{"大型鸟", "大鸟"}},
	{"SINGLE_SMALL", []string{"小型鸟", "小鸟"}},
}

var opsImpactRows = []enumPattern{
	{"RTO_OR_RTB", []string{"中断起飞", "中止起飞", "返航", "返场"}},
	{"DIVERTED", []string{"备降"}},
	{"CONTINUED", []string{"继续飞行", "继续执行", "正常起飞"}},
	{"NONE", []string{"无影响", "未受影响"}},
}

var locationAreaRows = []enumPattern{
	{"RUNWAY", []string{"跑道"}},
	{"TAXIWAY", []string{"滑行道", "联络道"}},
	{"APRON", []string{"机坪", "站坪"}},
	{"STAND", []string{"停机位", "机位"}},
}

var fodTypeRows = []enumPattern{
	{"METAL", []string{"螺母", "螺栓", "螺钉", "金属", "铁片", "扳手", "工具"}},
	{"RUBBER", []string{"橡胶", "胎皮", "轮胎碎片"}},
	{"PLASTIC", []string{"塑料"}},
	{"STONE", []string{"石块", "碎石", "混凝土块"}},
	{"PAPER", []string{"纸片", "纸张"}},
}

var presenceRows = []enumPattern{
	{"REMOVED", []string{"已清除", "已移除", "已捡起", "已拾取", "已取走"}},
	{"ON_SURFACE", []string{"仍在道面", "还在道面", "仍在跑道", "尚未清除", "未清除", "仍在现场", "仍在原处"}},
}

// fieldExtractors holds the per-field deterministic extractors, keyed by the
// declared checklist field key. Scenario descriptors that reuse these keys
// get regex extraction without code changes.
var fieldExtractors = map[string]func(text string) (any, bool){
	"fluid_type": func(t string) (any, bool) {
		v, ok := matchEnum(t, fluidTypeRows)
		return v, ok
	},
	"engine_status": func(t string) (any, bool) {
		v, ok := matchEnum(t, engineStatusRows)
		return v, ok
	},
	"continuous": func(t string) (any, bool) {
		for _, p := range continuousFalseRows {
			if strings.Contains(t, p) {
				return false, true
			}
		}
		for _, p := range continuousTrueRows {
			if strings.Contains(t, p) {
				return true, true
			}
		}
		return nil, false
	},
	"leak_size": func(t string) (any, bool) {
		v, ok := matchEnum(t, leakSizeRows)
		return v, ok
	},
	"phase": func(t string) (any, bool) {
		v, ok := matchEnum(t, birdPhaseRows)
		return v, ok
	},
	"impact_area": func(t string) (any, bool) {
		v, ok := matchEnum(t, impactAreaRows)
		return v, ok
	},
	"evidence": func(t string) (any, bool) {
		v, ok := matchEnum(t, evidenceRows)
		return v, ok
	},
	"bird_info": func(t string) (any, bool) {
		v, ok := matchEnum(t, birdInfoRows)
		return v, ok
	},
	"ops_impact": func(t string) (any, bool) {
		v, ok := matchEnum(t, opsImpactRows)
		return v, ok
	},
	"location_area": func(t string) (any, bool) {
		v, ok := matchEnum(t, locationAreaRows)
		return v, ok
	},
	"fod_type": func(t string) (any, bool) {
		v, ok := matchEnum(t, fodTypeRows)
		return v, ok
	},
	"presence": func(t string) (any, bool) {
		v, ok := matchEnum(t, presenceRows)
		return v, ok
	},
	"fod_size":      extractFODSize,
	"incident_time": extractClock,
}

// extractFODSize classifies a reported debris dimension: up to 5 cm is
// SMALL, up to 20 cm MEDIUM, beyond that LARGE.
func extractFODSize(text string) (any, bool) {
	if m := fodSizeRE.FindStringSubmatch(text); m != nil {
		cm, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			if m[2] == "毫米" || m[2] == "mm" {
				cm /= 10
			}
			switch {
			case cm <= 5:
				return "SMALL", true
			case cm <= 20:
				return "MEDIUM", true
			default:
				return "LARGE", true
			}
		}
	}
	if v, ok := matchEnum(text, []enumPattern{
		{"LARGE", []string{"较大", "很大", "大块"}},
		{"SMALL", []string{"较小", "细小", "小块"}},
	}); ok {
		return v, true
	}
	return nil, false
}

func extractClock(text string) (any, bool) {
	m := clockRE.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("%02d:%02d", h, min), true
}

// extractFlight returns canonical and display flight numbers. A spoken
// airline name resolves through the IATA table: 东航2392 → MU2392 with the
// original kept as the display form.
func extractFlight(text string) (canonical, display string) {
	if m := airlineFlightRE.FindStringSubmatch(text); m != nil {
		airline, rest := m[1], strings.ToUpper(m[2])
		display = m[0]
		if bareDigitsRE.MatchString(rest) {
			return airlineIATA[airline] + rest, display
		}
		return rest, display
	}
	if m := flightNoRE.FindString(text); m != "" {
		return strings.ToUpper(m), ""
	}
	return "", ""
}

// extractPosition resolves the reported location, preferring stands over
// runways over taxiways when a report names several.
func extractPosition(text string) (id, display string) {
	for _, re := range []*regexp.Regexp{standAfterRE, standBeforeRE, runwayAfterRE, runwayBeforRE, taxiAfterRE, taxiBeforeRE} {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.ToUpper(m[1]), m[0]
		}
	}
	return "", ""
}

// ExtractFields runs the deterministic extractors for every field the
// scenario declares, plus the common flight/position/time fields.
func ExtractFields(sc *models.Scenario, text string) map[string]any {
	out := make(map[string]any)

	if canonical, display := extractFlight(text); canonical != "" {
		out["flight_no"] = canonical
		if display != "" {
			out["flight_no_display"] = display
		}
	}
	if id, display := extractPosition(text); id != "" {
		out["position"] = id
		out["position_display"] = display
	}

	for _, key := range sc.FieldOrder {
		if _, done := out[key]; done {
			continue
		}
		extract, ok := fieldExtractors[key]
		if !ok {
			continue
		}
		if v, found := extract(text); found {
			out[key] = v
		}
	}
	return out
}
