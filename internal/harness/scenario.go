package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// maxAnyOrderSteps bounds the flow length for any_order scenarios.
const maxAnyOrderSteps = 7

// Scenario is a reconciliation test case.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Flow lists mutations in arrival order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final projection.
	Assertions []Assertion `yaml:"assertions"`

	// AnyOrder requires every permutation of Flow to end in the same jobs.
	AnyOrder bool `yaml:"any_order,omitempty"`
}

// Step is one mutation plus what it should do.
type Step struct {
	reconcile.Mutation `yaml:",inline"`

	// Expect is the expected outcome. Empty means not checked.
	Expect reconcile.Outcome `yaml:"expect,omitempty"`

	// ExpectError is the expected error code, e.g. INVALID_INPUT.
	ExpectError topic.ErrorCode `yaml:"expect_error,omitempty"`
}

// Assertion validates the final projection.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Name, State, Progress, and ResultURL are used by state.
	Name      string      `yaml:"name,omitempty"`
	State     topic.State `yaml:"state,omitempty"`
	Progress  *int        `yaml:"progress,omitempty"`
	ResultURL string      `yaml:"upscaledURL,omitempty"`

	// Pending, InFlight, and Completed are used by counts. Nil fields are
	// not checked.
	Pending   *int `yaml:"pending,omitempty"`
	InFlight  *int `yaml:"in_flight,omitempty"`
	Completed *int `yaml:"completed,omitempty"`

	// Names is used by in_flight_order and completed_order.
	Names []string `yaml:"names,omitempty"`
}

// Assertion type constants.
const (
	AssertState          = "state"
	AssertCounts         = "counts"
	AssertInFlightOrder  = "in_flight_order"
	AssertCompletedOrder = "completed_order"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", scenario.Name, err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if s.AnyOrder && len(s.Flow) > maxAnyOrderSteps {
		return fmt.Errorf("any_order supports at most %d steps, flow has %d", maxAnyOrderSteps, len(s.Flow))
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	known := false
	for _, k := range reconcile.Kinds {
		if step.Kind == k {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown kind %q", step.Kind)
	}
	if step.Kind == reconcile.KindSeed && step.Snapshot == nil {
		return fmt.Errorf("seed requires a snapshot")
	}
	if step.Kind != reconcile.KindSeed && step.Snapshot != nil {
		return fmt.Errorf("snapshot is only valid on seed steps")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertState:
		if a.Name == "" {
			return fmt.Errorf("name is required for state")
		}
		if a.State == "" {
			return fmt.Errorf("state is required for state")
		}
	case AssertCounts:
		if a.Pending == nil && a.InFlight == nil && a.Completed == nil {
			return fmt.Errorf("counts needs at least one of pending, in_flight, completed")
		}
	case AssertInFlightOrder, AssertCompletedOrder:
		if a.Names == nil {
			return fmt.Errorf("names is required for %s (use [] for none)", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
