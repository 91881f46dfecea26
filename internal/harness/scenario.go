package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/corpus"
)

// Scenario defines a simulated delivery lifecycle.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the clock's initial reading.
	Start time.Time `yaml:"start"`

	// Timezone, if set, moves Start into that location.
	Timezone string `yaml:"timezone,omitempty"`

	// Seed drives timing and selection. Salt varies scores per installation.
	Seed uint64 `yaml:"seed"`
	Salt int64  `yaml:"salt"`

	// Weather is the constant condition reported while the scenario runs.
	Weather ambient.Weather `yaml:"weather,omitempty"`

	// Preferences in force before the flow starts. Missing fields take
	// their defaults.
	Preferences *PrefsClause `yaml:"preferences,omitempty"`

	// Corpus is a corpus file, relative to the scenario file. Items lists
	// the corpus inline instead.
	Corpus string        `yaml:"corpus,omitempty"`
	Items  []corpus.Item `yaml:"items,omitempty"`

	Flow       []FlowStep  `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// PrefsClause sets some or all delivery preferences.
type PrefsClause struct {
	StartHour    *int `yaml:"start_hour,omitempty"`
	EndHour      *int `yaml:"end_hour,omitempty"`
	ItemsPerWeek *int `yaml:"items_per_week,omitempty"`
}

// FlowStep is one action of the flow.
type FlowStep struct {
	// Do names the action.
	Do string `yaml:"do"`

	// Count repeats fire.
	Count int `yaml:"count,omitempty"`

	// Duration and Days are used by advance; Days by pause.
	Duration time.Duration `yaml:"duration,omitempty"`
	Days     int           `yaml:"days,omitempty"`

	// Ref is the keep target; Item the confirm target. "last" names the
	// most recent delivery.
	Ref  string `yaml:"ref,omitempty"`
	Item string `yaml:"item,omitempty"`

	// Preferences is used by set_prefs.
	Preferences *PrefsClause `yaml:"preferences,omitempty"`
}

// Step names.
const (
	StepSchedule   = "schedule"
	StepFire       = "fire"
	StepAdvance    = "advance"
	StepReconcile  = "reconcile"
	StepDeliverNow = "deliver_now"
	StepConfirm    = "confirm"
	StepKeep       = "keep"
	StepPause      = "pause"
	StepResume     = "resume"
	StepSetPrefs   = "set_prefs"
)

// RefLast names the most recent delivery in keep and confirm steps.
const RefLast = "last"

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event is the event kind (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Item narrows trace_contains to one item.
	Item string `yaml:"item,omitempty"`

	// Events is the expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number (trace_count, delivered_count).
	Count int `yaml:"count,omitempty"`

	// Duration is the smallest allowed gap (min_gap).
	Duration time.Duration `yaml:"duration,omitempty"`

	// Table, Where and Expect query the store (final_state). Expect is a
	// subset match.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains   = "trace_contains"
	AssertTraceOrder      = "trace_order"
	AssertTraceCount      = "trace_count"
	AssertDeliveredCount  = "delivered_count"
	AssertNoRepeatInCycle = "no_repeat_in_cycle"
	AssertWithinWindow    = "within_window"
	AssertMinGap          = "min_gap"
	AssertFinalState      = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. A relative corpus
// path is resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Corpus != "" && !filepath.IsAbs(s.Corpus) {
		s.Corpus = filepath.Join(filepath.Dir(path), s.Corpus)
	}
	if s.Corpus != "" {
		if _, err := os.Stat(s.Corpus); err != nil {
			return nil, fmt.Errorf("invalid scenario: corpus file: %w", err)
		}
	}
	return s, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Start.IsZero() {
		return fmt.Errorf("start is required")
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if s.Weather != "" && !s.Weather.Known() {
		return fmt.Errorf("unknown weather %q", s.Weather)
	}
	if (s.Corpus == "") == (len(s.Items) == 0) {
		return fmt.Errorf("exactly one of corpus or items is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
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

func validateStep(i int, step FlowStep) error {
	switch step.Do {
	case StepSchedule, StepReconcile, StepDeliverNow, StepResume:
	case StepFire:
		if step.Count < 0 {
			return fmt.Errorf("flow[%d]: count must be non-negative", i)
		}
	case StepAdvance:
		if step.Duration <= 0 && step.Days <= 0 {
			return fmt.Errorf("flow[%d]: advance needs a positive duration or days", i)
		}
	case StepConfirm:
		if step.Item == "" {
			return fmt.Errorf("flow[%d]: item is required for confirm", i)
		}
	case StepKeep:
		if step.Ref == "" {
			return fmt.Errorf("flow[%d]: ref is required for keep", i)
		}
	case StepPause:
		if step.Days < 1 {
			return fmt.Errorf("flow[%d]: days must be at least 1 for pause", i)
		}
	case StepSetPrefs:
		if step.Preferences == nil {
			return fmt.Errorf("flow[%d]: preferences are required for set_prefs", i)
		}
	case "":
		return fmt.Errorf("flow[%d]: do is required", i)
	default:
		return fmt.Errorf("flow[%d]: unknown step %q", i, step.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertDeliveredCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for delivered_count", index)
		}
	case AssertNoRepeatInCycle, AssertWithinWindow:
	case AssertMinGap:
		if a.Duration <= 0 {
			return fmt.Errorf("assertions[%d]: duration is required for min_gap", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
