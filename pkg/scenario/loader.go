// Package scenario loads incident-scenario descriptors from declarative
// YAML directories and serves them through a read-only registry.
//
// A scenario directory holds five files:
//
//	manifest.yaml    id, selection keywords, version
//	prompt.yaml      system prompt, field order, display names, ask prompts
//	checklist.yaml   required (P1) and optional (P2) field definitions
//	fsm_states.yaml  the response-procedure state machine
//	config.yaml      mandatory triggers and the risk rule set
//
// Descriptors are parsed once at process start, validated fail-fast, and
// shared read-only across all sessions.
package scenario

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/rules"
)

//go:embed all:defaults
var defaultsFS embed.FS

// promptFile mirrors prompt.yaml.
type promptFile struct {
	SystemPrompt string            `yaml:"system_prompt"`
	FieldOrder   []string          `yaml:"field_order"`
	FieldNames   map[string]string `yaml:"field_names"`
	AskPrompts   map[string]string `yaml:"ask_prompts"`
}

// checklistFile mirrors checklist.yaml.
type checklistFile struct {
	P1Fields []models.ChecklistField `yaml:"p1_fields"`
	P2Fields []models.ChecklistField `yaml:"p2_fields"`
}

// configFile mirrors config.yaml. Exactly one of RiskRules and
// RiskRulesFile must be present.
type configFile struct {
	MandatoryTriggers []models.MandatoryTrigger `yaml:"mandatory_triggers"`
	RiskRules         []models.OilRiskRule      `yaml:"risk_rules"`
	RiskRulesFile     string                    `yaml:"risk_rules_file"`
}

// Load builds a registry from a scenario directory on disk, e.g. the
// SCENARIO_DIR deployment override.
func Load(root string) (*Registry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scenario dir %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scenario dir %s: not a directory", root)
	}
	return loadAll(os.DirFS(root))
}

// LoadDefault builds a registry from the descriptors compiled into the
// binary.
func LoadDefault() (*Registry, error) {
	sub, err := fs.Sub(defaultsFS, "defaults/scenarios")
	if err != nil {
		return nil, fmt.Errorf("embedded scenarios: %w", err)
	}
	return loadAll(sub)
}

func loadAll(fsys fs.FS) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}

	reg := &Registry{
		scenarios: make(map[string]*models.Scenario),
		ruleSets:  make(map[string]*rules.RuleSet),
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sc, rs, err := loadScenario(fsys, entry.Name())
		if err != nil {
			return nil, err
		}
		reg.scenarios[sc.ID] = sc
		if rs != nil {
			reg.ruleSets[sc.ID] = rs
		}
		reg.ids = append(reg.ids, sc.ID)
	}
	if len(reg.ids) == 0 {
		return nil, fmt.Errorf("list scenarios: no scenario directories found")
	}
	sort.Strings(reg.ids)

	if _, ok := reg.scenarios[DefaultScenarioID]; !ok {
		return nil, fmt.Errorf("default scenario %q is not present", DefaultScenarioID)
	}
	return reg, nil
}

// loadScenario reads one scenario directory, validates it, and compiles
// its weighted rule set when it carries one.
func loadScenario(fsys fs.FS, dir string) (*models.Scenario, *rules.RuleSet, error) {
	var manifest models.Manifest
	if err := readYAML(fsys, path.Join(dir, "manifest.yaml"), &manifest); err != nil {
		return nil, nil, err
	}
	var prompt promptFile
	if err := readYAML(fsys, path.Join(dir, "prompt.yaml"), &prompt); err != nil {
		return nil, nil, err
	}
	var checklist checklistFile
	if err := readYAML(fsys, path.Join(dir, "checklist.yaml"), &checklist); err != nil {
		return nil, nil, err
	}
	var states []models.FSMStateDef
	if err := readYAML(fsys, path.Join(dir, "fsm_states.yaml"), &states); err != nil {
		return nil, nil, err
	}
	var cfg configFile
	if err := readYAML(fsys, path.Join(dir, "config.yaml"), &cfg); err != nil {
		return nil, nil, err
	}

	sc := &models.Scenario{
		ID:                manifest.ID,
		Keywords:          manifest.Keywords,
		Version:           manifest.Version,
		SystemPrompt:      prompt.SystemPrompt,
		FieldOrder:        prompt.FieldOrder,
		FieldNames:        prompt.FieldNames,
		AskPrompts:        prompt.AskPrompts,
		P1Fields:          checklist.P1Fields,
		P2Fields:          checklist.P2Fields,
		FSMStates:         states,
		MandatoryTriggers: cfg.MandatoryTriggers,
		OilRules:          cfg.RiskRules,
	}
	if sc.AskPrompts == nil {
		sc.AskPrompts = make(map[string]string)
	}
	// Checklist-level ask prompts fill gaps left by prompt.yaml.
	for _, f := range append(append([]models.ChecklistField{}, sc.P1Fields...), sc.P2Fields...) {
		if f.AskPrompt != "" && sc.AskPrompts[f.Key] == "" {
			sc.AskPrompts[f.Key] = f.AskPrompt
		}
	}

	if cfg.RiskRulesFile != "" {
		if len(cfg.RiskRules) > 0 {
			return nil, nil, fmt.Errorf("scenario %s: both risk_rules and risk_rules_file set", dir)
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, cfg.RiskRulesFile))
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %s: read %s: %w", dir, cfg.RiskRulesFile, err)
		}
		sc.RuleSetJSON = raw
	}

	if err := validateScenario(dir, sc); err != nil {
		return nil, nil, err
	}

	if len(sc.RuleSetJSON) > 0 {
		ruleSet, err := rules.ParseRuleSet(sc.RuleSetJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %s: %w", dir, err)
		}
		return sc, ruleSet, nil
	}
	if err := rules.ValidateOilRules(sc.OilRules); err != nil {
		return nil, nil, fmt.Errorf("scenario %s: %w", dir, err)
	}
	return sc, nil, nil
}

func readYAML(fsys fs.FS, name string, out any) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}
