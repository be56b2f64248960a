package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a conformance scenario.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description says what the scenario demonstrates.
	Description string `yaml:"description"`

	// Document is the path of the starting document (JSON or YAML).
	Document string `yaml:"document"`

	// Flow lists the session operations to apply, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions check the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one session operation. Which fields are read depends on Op.
type FlowStep struct {
	Op         string         `yaml:"op"`
	Round      *int           `yaml:"round,omitempty"`
	Instrument *int           `yaml:"instrument,omitempty"`
	Holder     string         `yaml:"holder,omitempty"`
	Group      string         `yaml:"group,omitempty"`
	To         string         `yaml:"to,omitempty"`
	Value      map[string]any `yaml:"value,omitempty"`
	Expect     *ExpectClause  `yaml:"expect,omitempty"`
}

// ExpectClause checks the outcome of a single step.
type ExpectClause struct {
	// Error, when set, requires the step to fail with an error containing
	// this text.
	Error string `yaml:"error,omitempty"`

	// Propagated lists the allocations lineage propagation must touch, as
	// "rounds[r].instruments[i]" paths. Checked only when non-nil.
	Propagated []string `yaml:"propagated,omitempty"`

	// Degraded checks the resolution of edit_allocation.
	Degraded *bool `yaml:"degraded,omitempty"`

	// Codes maps round index to the exact validation codes expected after
	// the step.
	Codes map[int][]string `yaml:"codes,omitempty"`
}

// Assertion checks the final state.
type Assertion struct {
	Type       string         `yaml:"type"`
	Round      int            `yaml:"round,omitempty"`
	Instrument *int           `yaml:"instrument,omitempty"`
	Holder     string         `yaml:"holder,omitempty"`
	Absent     bool           `yaml:"absent,omitempty"`
	Expect     map[string]any `yaml:"expect,omitempty"`
	Count      *int           `yaml:"count,omitempty"`
	Codes      []string       `yaml:"codes,omitempty"`
	Kinds      []string       `yaml:"kinds,omitempty"`
	Names      []string       `yaml:"names,omitempty"`
}

// Flow operations.
const (
	OpAddHolder             = "add_holder"
	OpRenameHolder          = "rename_holder"
	OpDeleteHolder          = "delete_holder"
	OpRenameGroup           = "rename_group"
	OpAddRound              = "add_round"
	OpUpdateRound           = "update_round"
	OpChangeCalculationType = "change_calculation_type"
	OpDeleteRound           = "delete_round"
	OpAddInstrument         = "add_instrument"
	OpUpdateInstrument      = "update_instrument"
	OpDeleteInstrument      = "delete_instrument"
	OpEditGrant             = "edit_grant"
	OpToggleExercise        = "toggle_exercise"
	OpEditAllocation        = "edit_allocation"
)

// Assertion types.
const (
	AssertInstrument      = "instrument"       // round + instrument, subset match on flat keys
	AssertAllocation      = "allocation"       // round + holder, subset match or absent
	AssertInstrumentCount = "instrument_count" // round + count
	AssertRoundErrors     = "round_errors"     // round + exact codes
	AssertAudit           = "audit"            // exact issue kinds, in order
	AssertHolders         = "holders"          // exact holder names, in order
	AssertDocumentValid   = "document_valid"   // no document-level errors
)

// stepFields lists the fields each operation requires.
var stepFields = map[string][]string{
	OpAddHolder:             {"value"},
	OpRenameHolder:          {"holder", "to"},
	OpDeleteHolder:          {"holder"},
	OpRenameGroup:           {"group", "to"},
	OpAddRound:              {"value"},
	OpUpdateRound:           {"round", "value"},
	OpChangeCalculationType: {"round", "value"},
	OpDeleteRound:           {"round"},
	OpAddInstrument:         {"round", "value"},
	OpUpdateInstrument:      {"round", "instrument", "value"},
	OpDeleteInstrument:      {"round", "instrument"},
	OpEditGrant:             {"round", "instrument", "value"},
	OpToggleExercise:        {"round", "holder"},
	OpEditAllocation:        {"round", "holder", "value"},
}

// LoadScenario reads a scenario file. Unknown keys are rejected so typos
// fail loudly. The document path is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario file and resolves its document
// path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Document != "" && !filepath.IsAbs(scenario.Document) && basePath != "" {
		scenario.Document = filepath.Join(basePath, scenario.Document)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Document == "" {
		return fmt.Errorf("document is required")
	}
	if _, err := os.Stat(s.Document); err != nil {
		return fmt.Errorf("document not found: %s", s.Document)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *FlowStep) error {
	required, ok := stepFields[step.Op]
	if !ok {
		if step.Op == "" {
			return fmt.Errorf("flow[%d]: op is required", index)
		}
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}
	for _, field := range required {
		missing := false
		switch field {
		case "round":
			missing = step.Round == nil
		case "instrument":
			missing = step.Instrument == nil
		case "holder":
			missing = step.Holder == ""
		case "group":
			missing = step.Group == ""
		case "to":
			missing = step.To == ""
		case "value":
			missing = step.Value == nil
		}
		if missing {
			return fmt.Errorf("flow[%d]: %s is required for %s", index, field, step.Op)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertInstrument:
		if a.Instrument == nil || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: instrument and expect are required for instrument", index)
		}
	case AssertAllocation:
		if a.Holder == "" {
			return fmt.Errorf("assertions[%d]: holder is required for allocation", index)
		}
		if a.Absent == (len(a.Expect) > 0) {
			return fmt.Errorf("assertions[%d]: allocation needs exactly one of expect or absent", index)
		}
	case AssertInstrumentCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for instrument_count", index)
		}
	case AssertRoundErrors, AssertAudit, AssertHolders, AssertDocumentValid:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
