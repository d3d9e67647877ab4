package tools

import (
	"context"
	"strings"

	"github.com/airside-ops/apron/pkg/assessment"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/parser"
)

const askUserSchema = `{
  "type": "object",
  "properties": {
    "question": {"type": "string", "minLength": 1, "maxLength": 500}
  },
  "required": ["question"],
  "additionalProperties": false
}`

// askUser relays a free-form question to the operator and suspends the
// turn.
func (b *builder) askUser() *Tool {
	return &Tool{
		Name:        "ask_user",
		Description: "向现场报告人提出一个问题并等待回复。用于收集清单缺失的信息。",
		Scenarios:   []string{"common"},
		BareKey:     "question",
		schemaRaw:   askUserSchema,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			question := inputString(input, "question")
			state.NextQuestion = question
			state.AwaitingUser = true
			state.AppendMessage(models.RoleAssistant, question)
			return success("question sent to user: %s", question)
		},
	}
}

// smartAsk asks for the highest-priority checklist field still missing.
func (b *builder) smartAsk() *Tool {
	return &Tool{
		Name:        "smart_ask",
		Description: "自动选择当前最优先的缺失清单项并向报告人提问。无需参数。",
		Scenarios:   []string{"common"},
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			sc, err := b.scenarioFor(state)
			if err != nil {
				return failure("unknown scenario %q", state.ScenarioType)
			}
			for _, f := range append(append([]models.ChecklistField{}, sc.P1Fields...), sc.P2Fields...) {
				if state.Checklist[f.Key] {
					continue
				}
				question := sc.AskPromptFor(f.Key)
				state.NextQuestion = question
				state.AwaitingUser = true
				state.AppendMessage(models.RoleAssistant, question)
				return success("asking for %s: %s", f.Key, question)
			}
			return success("all checklist fields collected, nothing to ask")
		},
	}
}

const queryFlightPlanSchema = `{
  "type": "object",
  "properties": {
    "flight_no": {"type": "string", "minLength": 2, "maxLength": 10}
  },
  "additionalProperties": false
}`

// queryFlightPlan resolves a flight against the daily plan and pins it as
// the reference flight for the impact window.
func (b *builder) queryFlightPlan() *Tool {
	return &Tool{
		Name:        "query_flight_plan",
		Description: "查询航班计划：计划时刻、进出港、机位、跑道、机型。缺省使用事件中的航班号。",
		Scenarios:   []string{"common"},
		BareKey:     "flight_no",
		schemaRaw:   queryFlightPlanSchema,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			if b.deps.Ref == nil {
				return failure("flight plan data not available")
			}
			flightNo := stringOr(input, "flight_no", state.IncidentString("flight_no"))
			if flightNo == "" {
				return failure("flight number unknown: provide flight_no or report it first")
			}
			now := b.deps.Now()
			flight, found := b.deps.Ref.FlightPlan.Find(flightNo, now)
			if !found {
				return success("flight %s is not in today's flight plan", flightNo)
			}
			state.ReferenceFlight = &models.ReferenceFlight{
				FlightNo:      flight.FlightNo,
				ReferenceTime: flight.ScheduledTime,
			}
			if len(state.FlightPlanTable) == 0 {
				state.FlightPlanTable = b.deps.Ref.FlightPlan.Entries(now)
			}

			parts := []string{flight.Movement + " at " + flight.ScheduledTime.Format("15:04")}
			if flight.Stand != "" {
				parts = append(parts, "stand "+flight.Stand)
			}
			if flight.Taxiway != "" {
				parts = append(parts, "taxiway "+flight.Taxiway)
			}
			if flight.Runway != "" {
				parts = append(parts, "runway "+flight.Runway)
			}
			if flight.AircraftType != "" {
				parts = append(parts, "aircraft "+flight.AircraftType)
			}
			if flight.Airline != "" {
				parts = append(parts, "airline "+flight.Airline)
			}
			return success("flight %s: %s", flight.FlightNo, strings.Join(parts, ", "))
		},
	}
}

// getWeather reports the latest observation and stores the derived
// adjustment factors on the session.
func (b *builder) getWeather() *Tool {
	return &Tool{
		Name:        "get_weather",
		Description: "获取最新机场气象实况：风速风向、气温、能见度、降水。",
		Scenarios:   []string{"common"},
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			if b.deps.Ref == nil || b.deps.Ref.Weather == nil {
				return failure("weather data not available")
			}
			obs, ok := b.deps.Ref.Weather.Current()
			if !ok {
				return failure("no weather observations on record")
			}
			state.WeatherImpact = assessment.ComputeWeatherImpact(assessment.Observation{
				WindSpeedMS:   obs.WindSpeedMS,
				WindDirection: obs.WindDirection,
				TemperatureC:  obs.TemperatureC,
				VisibilityKM:  obs.VisibilityKM,
			})
			precip := obs.Precipitation
			if precip == "" {
				precip = "none"
			}
			return success("station %s: wind %.1f m/s from %.0f°, %.1f°C, visibility %.1f km, precipitation %s",
				obs.Station, obs.WindSpeedMS, obs.WindDirection, obs.TemperatureC, obs.VisibilityKM, precip)
		},
	}
}

const queryAircraftInfoSchema = `{
  "type": "object",
  "properties": {
    "aircraft_type": {"type": "string", "minLength": 2, "maxLength": 10}
  },
  "additionalProperties": false
}`

// queryAircraftInfo resolves an airframe type, defaulting to the type of
// the flight under handling.
func (b *builder) queryAircraftInfo() *Tool {
	return &Tool{
		Name:        "query_aircraft_info",
		Description: "查询机型资料：制造商、类别、油箱容量、翼展、座位数。缺省使用事件航班的机型。",
		Scenarios:   []string{"common"},
		BareKey:     "aircraft_type",
		schemaRaw:   queryAircraftInfoSchema,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			if b.deps.Ref == nil {
				return failure("aircraft registry not available")
			}
			code := inputString(input, "aircraft_type")
			if code == "" {
				if flightNo := state.IncidentString("flight_no"); flightNo != "" {
					if flight, found := b.deps.Ref.FlightPlan.Find(flightNo, b.deps.Now()); found {
						code = flight.AircraftType
					}
				}
			}
			if code == "" {
				return failure("aircraft type unknown: provide aircraft_type or look the flight up first")
			}
			t, found := b.deps.Ref.Aircraft.Get(code)
			if !found {
				return success("aircraft type %s is not in the registry", strings.ToUpper(code))
			}
			return success("%s: %s, category %s, fuel capacity %d L, wingspan %.1f m, %d seats",
				t.Type, t.Manufacturer, t.Category, t.FuelCapacityL, t.WingspanM, t.Seats)
		},
	}
}

const normalizeRadiotelephonySchema = `{
  "type": "object",
  "properties": {
    "text": {"type": "string", "minLength": 1, "maxLength": 2000}
  },
  "required": ["text"],
  "additionalProperties": false
}`

// normalizeRadiotelephony applies the deterministic spoken-form rewrite so
// the model can read positions and callsigns out of raw radio phrasing.
func (b *builder) normalizeRadiotelephony() *Tool {
	return &Tool{
		Name:        "normalize_radiotelephony",
		Description: "将陆空通话读法转写为标准书面形式，如 洞幺→01、跑道两拐左→跑道27L。",
		Scenarios:   []string{"common"},
		BareKey:     "text",
		schemaRaw:   normalizeRadiotelephonySchema,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			text := inputString(input, "text")
			normalized := parser.NormalizeStage1(text)
			if normalized == text {
				return success("no spoken forms found: %s", text)
			}
			return success("normalized: %s", normalized)
		},
	}
}
