package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Users lists the user aliases connected for the whole run.
	Users []string `yaml:"users"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one command issued by one user.
type Step struct {
	User   string `yaml:"user"`
	Method string `yaml:"method"`
	Args   []any  `yaml:"args"`

	// Expect checks the outcome. Nil means the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a step outcome.
type Expect struct {
	// Error is the expected error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Result is matched as a subset of the JSON result.
	Result any `yaml:"result,omitempty"`
}

// Assertion validates final state or the trace.
type Assertion struct {
	Type string `yaml:"type"`

	// File selects the open file (property, object_count, depends_on, consistent).
	File string `yaml:"file,omitempty"`

	// Object is the object alias (property, depends_on).
	Object string `yaml:"object,omitempty"`

	// Prop and Equals check one property (property).
	Prop   string `yaml:"prop,omitempty"`
	Equals any    `yaml:"equals,omitempty"`

	// Publishers lists expected publisher aliases (depends_on).
	Publishers []string `yaml:"publishers,omitempty"`

	// User and Message select deliveries (delivered, history).
	User    string `yaml:"user,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Count is the expected number (object_count, delivered, history).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertProperty    = "property"
	AssertObjectCount = "object_count"
	AssertDependsOn   = "depends_on"
	AssertDelivered   = "delivered"
	AssertHistory     = "history"
	AssertConsistent  = "consistent"
)

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

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
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
	if len(s.Users) == 0 {
		return fmt.Errorf("users list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	users := make(map[string]bool, len(s.Users))
	for i, u := range s.Users {
		if u == "" {
			return fmt.Errorf("users[%d]: empty alias", i)
		}
		if users[u] {
			return fmt.Errorf("users[%d]: duplicate user %q", i, u)
		}
		users[u] = true
	}

	for i, step := range s.Steps {
		if step.Method == "" {
			return fmt.Errorf("steps[%d]: method is required", i)
		}
		if !users[step.User] {
			return fmt.Errorf("steps[%d]: unknown user %q", i, step.User)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], users); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, users map[string]bool) error {
	needs := func(ok bool, what string) error {
		if !ok {
			return fmt.Errorf("assertions[%d]: %s is required for %s", index, what, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertProperty:
		return firstErr(needs(a.File != "", "file"), needs(a.Object != "", "object"), needs(a.Prop != "", "prop"))
	case AssertObjectCount:
		return firstErr(needs(a.File != "", "file"), needs(a.Count >= 0, "a non-negative count"))
	case AssertDependsOn:
		return firstErr(needs(a.File != "", "file"), needs(a.Object != "", "object"))
	case AssertDelivered:
		return firstErr(needs(users[a.User], "a known user"), needs(a.Message != "", "message"))
	case AssertHistory:
		return firstErr(needs(a.File != "", "file"), needs(users[a.User], "a known user"))
	case AssertConsistent:
		return needs(a.File != "", "file")
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
