package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/state"
)

// Scenario defines a replication scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Instances names the instances sharing the store, in start order.
	// The first one seeds the empty store.
	Instances []string `yaml:"instances"`

	// Seed overrides the built-in initial configuration.
	Seed *SeedConfig `yaml:"seed,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// SeedConfig is the initial configuration every instance starts from.
type SeedConfig struct {
	Prices *model.PriceConfig `yaml:"prices,omitempty"`
	Zones  []state.ZoneSeed   `yaml:"zones,omitempty"`
}

// Step is one thing an instance does. Exactly one of Dispatch, Sync,
// Advance and StoreError is set; ClearStoreError counts as StoreError.
type Step struct {
	Instance string `yaml:"instance"`

	// Dispatch is an action kind; Args is decoded into the action.
	Dispatch string    `yaml:"dispatch,omitempty"`
	Args     yaml.Node `yaml:"args,omitempty"`

	// Sync re-reads the shared store.
	Sync bool `yaml:"sync,omitempty"`

	// Advance moves the shared clock, e.g. "90s".
	Advance string `yaml:"advance,omitempty"`

	// StoreError makes every store write fail with this message until a
	// step sets ClearStoreError.
	StoreError      string `yaml:"store_error,omitempty"`
	ClearStoreError bool   `yaml:"clear_store_error,omitempty"`

	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect checks the immediate result of a step.
type StepExpect struct {
	// Outcome is the trace outcome: changed, unchanged or rejected for a
	// dispatch; adopted, current or failed for a sync.
	Outcome string `yaml:"outcome,omitempty"`

	// Notification is the title of the newest notification afterwards.
	Notification string `yaml:"notification,omitempty"`

	// Severity is the severity of the newest notification afterwards.
	Severity model.Severity `yaml:"severity,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "converged": listed instances hold equal payloads
	// - "final_state": a state row matches where and expect
	// - "cart_total": cart totals match expect
	// - "trace_contains": a trace entry with Action exists
	// - "trace_order": Actions appear in order
	// - "trace_count": Action appears exactly Count times
	Type string `yaml:"type"`

	// Instance restricts the assertion to one instance. Required by
	// final_state and cart_total, optional for trace assertions.
	Instance string `yaml:"instance,omitempty"`

	// Instances lists the instances compared by converged (default all).
	Instances []string `yaml:"instances,omitempty"`

	// Action is a trace label (used by trace_contains and trace_count).
	Action string `yaml:"action,omitempty"`

	// Source filters trace_contains by originating instance.
	Source string `yaml:"source,omitempty"`

	// Table is prices, zones, novels, cart or notifications.
	Table string `yaml:"table,omitempty"`

	// Where selects the row (used by final_state). All fields must match.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values. Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that no row matches Where.
	Absent bool `yaml:"absent,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected label order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged     = "converged"
	AssertFinalState    = "final_state"
	AssertCartTotal     = "cart_total"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// Tables readable by final_state.
var stateTables = []string{"prices", "zones", "novels", "cart", "notifications"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Instances) == 0 {
		return fmt.Errorf("instances list is required and must be non-empty")
	}
	for i, name := range s.Instances {
		if name == "" {
			return fmt.Errorf("instances[%d]: name is empty", i)
		}
		if slices.Index(s.Instances, name) != i {
			return fmt.Errorf("instances[%d]: duplicate name %q", i, name)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, s, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, s, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Scenario, step *Step) error {
	if !slices.Contains(s.Instances, step.Instance) {
		return fmt.Errorf("steps[%d]: unknown instance %q", index, step.Instance)
	}

	kinds := 0
	if step.Dispatch != "" {
		kinds++
		if _, ok := actionDecoders[state.Kind(step.Dispatch)]; !ok {
			return fmt.Errorf("steps[%d]: action %q cannot be dispatched", index, step.Dispatch)
		}
	}
	if step.Sync {
		kinds++
	}
	if step.Advance != "" {
		kinds++
		if d, err := time.ParseDuration(step.Advance); err != nil || d < 0 {
			return fmt.Errorf("steps[%d]: advance must be a non-negative duration", index)
		}
	}
	if step.StoreError != "" || step.ClearStoreError {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of dispatch, sync, advance, store_error or clear_store_error is required", index)
	}
	if step.Args.Kind != 0 && step.Dispatch == "" {
		return fmt.Errorf("steps[%d]: args require dispatch", index)
	}

	if e := step.Expect; e != nil {
		switch e.Outcome {
		case "", OutcomeChanged, OutcomeUnchanged, OutcomeRejected, OutcomeAdopted, OutcomeCurrent, OutcomeFailed:
		default:
			return fmt.Errorf("steps[%d].expect: unknown outcome %q", index, e.Outcome)
		}
		if e.Severity != "" && !e.Severity.Valid() {
			return fmt.Errorf("steps[%d].expect: unknown severity %q", index, e.Severity)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, s *Scenario, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Instance != "" && !slices.Contains(s.Instances, a.Instance) {
		return fmt.Errorf("assertions[%d]: unknown instance %q", index, a.Instance)
	}

	switch a.Type {
	case AssertConverged:
		for _, name := range a.Instances {
			if !slices.Contains(s.Instances, name) {
				return fmt.Errorf("assertions[%d]: unknown instance %q", index, name)
			}
		}
	case AssertFinalState:
		if a.Instance == "" {
			return fmt.Errorf("assertions[%d]: instance is required for final_state", index)
		}
		if !slices.Contains(stateTables, a.Table) {
			return fmt.Errorf("assertions[%d]: table must be one of %v", index, stateTables)
		}
		if len(a.Expect) == 0 && !a.Absent {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
		if a.Absent && len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: absent requires where", index)
		}
	case AssertCartTotal:
		if a.Instance == "" {
			return fmt.Errorf("assertions[%d]: instance is required for cart_total", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for cart_total", index)
		}
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
