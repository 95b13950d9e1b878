package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cadstore/internal/codec"
)

// GoldenDir is where RunWithGolden and AssertGolden keep golden files.
const GoldenDir = "testdata/golden"

// Snapshot captures the observable outcome of a run.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Trace        []TraceEvent   `json:"trace"`
	Documents    map[string]any `json:"documents,omitempty"`
}

// Encode returns the snapshot as canonical JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	return codec.Canonical(s)
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(name string, result *Result) *Snapshot {
	return &Snapshot{ScenarioName: name, Trace: result.Trace, Documents: result.Documents}
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) error {
	t.Helper()
	result, err := Run(t.Context(), scenario, opts...)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares result against the golden file for name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()
	return AssertGoldenIn(t, GoldenDir, name, result)
}

// AssertGoldenIn compares result against the golden file for name in dir.
func AssertGoldenIn(t *testing.T, dir, name string, result *Result) error {
	t.Helper()
	data, err := NewSnapshot(name, result).Encode()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// UpdateGoldenIn writes result as the golden file for name in dir.
func UpdateGoldenIn(t *testing.T, dir, name string, result *Result) error {
	t.Helper()
	data, err := NewSnapshot(name, result).Encode()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	return g.Update(t, name, data)
}
