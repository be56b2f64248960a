package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/captable/internal/model"
)

// TraceSnapshot is the golden-file form of a run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// SnapshotBytes renders the canonical JSON compared against golden files.
func SnapshotBytes(name string, result *Result) ([]byte, error) {
	return model.MarshalCanonical(TraceSnapshot{ScenarioName: name, Trace: result.Trace})
}

// GoldenPath returns the golden file of a scenario file: a golden/
// directory next to it, named after the file.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// UpdateGolden writes the snapshot of result as the scenario's golden file.
func UpdateGolden(scenarioFile string, scenario *Scenario, result *Result) error {
	data, err := SnapshotBytes(scenario.Name, result)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	path := GoldenPath(scenarioFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// CompareGolden reports whether result matches the scenario's golden file.
// ok is false with a nil error when no golden file exists.
func CompareGolden(scenarioFile string, scenario *Scenario, result *Result) (match, ok bool, err error) {
	want, err := os.ReadFile(GoldenPath(scenarioFile))
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	got, err := SnapshotBytes(scenario.Name, result)
	if err != nil {
		return false, true, err
	}
	return bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(got)), true, nil
}

// RunWithGolden loads and runs the scenario file and compares its trace
// with the file's golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenarioFile string) (*Result, error) {
	t.Helper()

	scenario, err := LoadScenario(scenarioFile)
	if err != nil {
		return nil, err
	}
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	data, err := SnapshotBytes(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	path := GoldenPath(scenarioFile)
	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Dir(path)),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, strings.TrimSuffix(filepath.Base(path), ".golden"), data)
	return result, nil
}
