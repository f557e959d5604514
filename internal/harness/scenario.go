package harness

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/txiso/internal/experiment"
	"github.com/roach88/txiso/internal/store"
)

// Scenario defines one isolation experiment and what its outcome must be.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// RunID is a fixed run id stamped on every trial for deterministic
	// reports. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Seed is the ledger inserted into each trial's fresh workspace.
	Seed []SeedEntry `yaml:"seed"`

	// Experiment runs N concurrent read-modify-write units. Exactly one of
	// Experiment and Transfer must be set.
	Experiment *ExperimentSpec `yaml:"experiment,omitempty"`

	// Transfer applies its steps sequentially in one transaction.
	Transfer []TransferStep `yaml:"transfer,omitempty"`

	// Trials repeats the plan in fresh workspaces. Defaults to 1.
	Trials int `yaml:"trials,omitempty"`

	// Assertions are checked against the trial summary.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedEntry is one named balance.
type SeedEntry struct {
	Name  string `yaml:"name"`
	Money Amount `yaml:"money"`
}

// ExperimentSpec configures the concurrent runner.
type ExperimentSpec struct {
	Account     string `yaml:"account"`
	Concurrency int    `yaml:"concurrency"`
	Delta       Amount `yaml:"delta"`

	// Lock is "none" (default) or "for_update".
	Lock string `yaml:"lock,omitempty"`

	// Isolation is "read_committed" (default), "repeatable_read" or
	// "serializable".
	Isolation string `yaml:"isolation,omitempty"`

	// ThinkTime is a Go duration slept between read and write, e.g. "5ms".
	ThinkTime string `yaml:"think_time,omitempty"`
}

// TransferStep adds Delta to Account.
type TransferStep struct {
	Account string `yaml:"account"`
	Delta   Amount `yaml:"delta"`
}

// Amount is a money value written in YAML as a number or a decimal string.
// Decoding goes through the literal text, so 0.1 stays exactly 0.1.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// UnmarshalYAML decodes a scalar node as a decimal.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", node.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q", node.Line, node.Value)
	}
	a.Decimal = d
	return nil
}

// Assertion checks one property of the trial summary.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Expect maps account name to its required final amount on every trial
	// (final_balances). Accounts not listed are not checked.
	Expect map[string]Amount `yaml:"expect,omitempty"`

	// Min and Max bound the measured value (lost_updates, anomaly_rate).
	// Either may be omitted.
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`

	// Value is the required boolean (matches_serial, distinct_workspaces).
	Value *bool `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalBalances      = "final_balances"
	AssertMatchesSerial      = "matches_serial"
	AssertLostUpdates        = "lost_updates"
	AssertAnomalyRate        = "anomaly_rate"
	AssertDistinctWorkspaces = "distinct_workspaces"
)

var scenarioName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// LoadScenario reads, schema-checks and parses a scenario YAML file.
// Returns an error if the file doesn't exist, violates the schema,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	if errs := ValidateSchema(path, data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid scenario: %w", errs[0])
	}
	return ParseScenario(data)
}

// ParseScenario decodes scenario YAML with strict field checking and
// validates it. It does not run the CUE schema.
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
	if !scenarioName.MatchString(s.Name) {
		return fmt.Errorf("name %q must be lower snake_case", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Seed) == 0 {
		return fmt.Errorf("seed list is required and must be non-empty")
	}
	for i, e := range s.Seed {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("seed[%d]: name is required", i)
		}
	}

	switch {
	case s.Experiment == nil && len(s.Transfer) == 0:
		return fmt.Errorf("one of experiment or transfer is required")
	case s.Experiment != nil && len(s.Transfer) > 0:
		return fmt.Errorf("experiment and transfer are mutually exclusive")
	}
	if s.Trials < 0 {
		return fmt.Errorf("trials must be non-negative")
	}
	if _, err := s.Plan(); err != nil {
		return err
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalBalances:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_balances", index)
		}
	case AssertLostUpdates, AssertAnomalyRate:
		if a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: min or max is required for %s", index, a.Type)
		}
		if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
			return fmt.Errorf("assertions[%d]: min %v exceeds max %v", index, *a.Min, *a.Max)
		}
	case AssertMatchesSerial, AssertDistinctWorkspaces:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// TrialCount returns Trials, defaulting to 1.
func (s *Scenario) TrialCount() int {
	if s.Trials == 0 {
		return 1
	}
	return s.Trials
}

// Plan converts the scenario into an experiment plan.
func (s *Scenario) Plan() (experiment.Plan, error) {
	plan := experiment.Plan{Seed: make([]experiment.Entry, 0, len(s.Seed))}
	for _, e := range s.Seed {
		plan.Seed = append(plan.Seed, experiment.Entry{Name: e.Name, Money: e.Money.Decimal})
	}

	for i, st := range s.Transfer {
		if strings.TrimSpace(st.Account) == "" {
			return plan, fmt.Errorf("transfer[%d]: account is required", i)
		}
		plan.Transfer = append(plan.Transfer, experiment.Step{Account: st.Account, Delta: st.Delta.Decimal})
	}

	x := s.Experiment
	if x == nil {
		return plan, nil
	}
	if strings.TrimSpace(x.Account) == "" {
		return plan, fmt.Errorf("experiment: account is required")
	}
	if x.Concurrency < 1 {
		return plan, fmt.Errorf("experiment: concurrency must be at least 1")
	}
	lock, err := store.ParseLockMode(x.Lock)
	if err != nil {
		return plan, fmt.Errorf("experiment: %w", err)
	}
	iso, err := store.ParseIsolation(x.Isolation)
	if err != nil {
		return plan, fmt.Errorf("experiment: %w", err)
	}
	var think time.Duration
	if x.ThinkTime != "" {
		think, err = time.ParseDuration(x.ThinkTime)
		if err != nil {
			return plan, fmt.Errorf("experiment: think_time: %w", err)
		}
		if think < 0 {
			return plan, fmt.Errorf("experiment: think_time must not be negative")
		}
	}

	plan.Account = x.Account
	plan.Concurrency = x.Concurrency
	plan.Delta = x.Delta.Decimal
	plan.Lock = lock
	plan.Isolation = iso
	plan.ThinkTime = think
	return plan, nil
}
