package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docsync/internal/model"
)

// Scenario is a scripted sequence of corpus edits and reconciliation cycles.
// Each scenario gets a fresh in-memory store; each cycle mutates the corpus,
// runs one reconciliation cycle and checks the outcome. Assertions run
// against the final store.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Cycles run in order against the same store and corpus.
	Cycles []Cycle `yaml:"cycles"`

	// Assertions validate the final store state.
	// Supported types: snapshot_present, snapshot_absent, changelog_count,
	// changelog_sequence, changelog_contains.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Cycle is one step of a scenario.
type Cycle struct {
	// Name labels the cycle in error messages.
	Name string `yaml:"name,omitempty"`

	// Corpus is applied to the repository before the cycle runs.
	Corpus CorpusChange `yaml:"corpus,omitempty"`

	// Run selects how the cycle is started.
	Run RunStep `yaml:"run,omitempty"`

	// Expect checks the returned run. If nil, nothing is checked.
	Expect *CycleExpect `yaml:"expect,omitempty"`
}

// CorpusChange edits the in-memory corpus. Failures are cleared first, then
// documents are put, deleted, and new failures injected.
type CorpusChange struct {
	ClearFailures bool              `yaml:"clear_failures,omitempty"`
	Put           []DocumentStep    `yaml:"put,omitempty"`
	Delete        []string          `yaml:"delete,omitempty"`
	FailRead      map[string]string `yaml:"fail_read,omitempty"`
	FailList      string            `yaml:"fail_list,omitempty"`
}

// DocumentStep creates or replaces one document.
type DocumentStep struct {
	ID     string `yaml:"id"`
	Path   string `yaml:"path,omitempty"`
	Author string `yaml:"author,omitempty"`
	Body   string `yaml:"body"`
}

// RunStep mirrors engine.RunOpts plus fault injection at commit time.
type RunStep struct {
	Trigger string   `yaml:"trigger,omitempty"`
	Targets []string `yaml:"targets,omitempty"`
	DryRun  bool     `yaml:"dry_run,omitempty"`

	// FailCommit makes the commit transaction fail with this message.
	FailCommit string `yaml:"fail_commit,omitempty"`
}

// CycleExpect is the expected outcome of one cycle. Unset fields are not
// checked; Entries and Failures, when present, must match exactly in order.
type CycleExpect struct {
	Status    string          `yaml:"status,omitempty"`
	ErrorCode string          `yaml:"error_code,omitempty"`
	Processed *int            `yaml:"processed,omitempty"`
	Failed    *int            `yaml:"failed,omitempty"`
	Entries   []EntryExpect   `yaml:"entries,omitempty"`
	Failures  []FailureExpect `yaml:"failures,omitempty"`

	// NoEntries requires the cycle to produce no changelog entries.
	NoEntries bool `yaml:"no_entries,omitempty"`
}

// EntryExpect matches one changelog entry. Document and Kind are required;
// Seq, Summary and Diff are checked only when set.
type EntryExpect struct {
	Document string `yaml:"document"`
	Kind     string `yaml:"kind"`
	Seq      int64  `yaml:"seq,omitempty"`
	Summary  string `yaml:"summary,omitempty"`
	Diff     string `yaml:"diff,omitempty"`
}

// FailureExpect matches one document failure.
type FailureExpect struct {
	Document string `yaml:"document"`
	Kind     string `yaml:"kind"`
}

// Assertion validates final store state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "snapshot_present": the document has a snapshot (optionally from Cycle)
	// - "snapshot_absent": the document has neither snapshot nor record
	// - "changelog_count": the changelog holds exactly Count entries
	// - "changelog_sequence": the changelog seqs are exactly Sequence
	// - "changelog_contains": entries for Document (and Kind) exist, Count times if set
	Type string `yaml:"type"`

	// Document is the document ID (snapshot_*, changelog_contains).
	Document string `yaml:"document,omitempty"`

	// Kind filters changelog_contains.
	Kind string `yaml:"kind,omitempty"`

	// Cycle is the 1-based cycle whose ID the snapshot must carry.
	Cycle int `yaml:"cycle,omitempty"`

	// Count is the expected number of entries.
	Count *int `yaml:"count,omitempty"`

	// Sequence is the expected list of seq numbers.
	Sequence []int64 `yaml:"sequence,omitempty"`
}

// Assertion type constants.
const (
	AssertSnapshotPresent   = "snapshot_present"
	AssertSnapshotAbsent    = "snapshot_absent"
	AssertChangelogCount    = "changelog_count"
	AssertChangelogSequence = "changelog_sequence"
	AssertChangelogContains = "changelog_contains"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
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

// LoadDir loads every *.yaml and *.yml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob scenarios: %w", err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Cycles) == 0 {
		return fmt.Errorf("cycles list is required and must be non-empty")
	}

	for i, c := range s.Cycles {
		if err := validateCycle(i, &c); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Cycles)); err != nil {
			return err
		}
	}
	return nil
}

func validateCycle(index int, c *Cycle) error {
	for j, put := range c.Corpus.Put {
		if _, _, ok := model.ParseID(put.ID); !ok {
			return fmt.Errorf("cycles[%d].corpus.put[%d]: invalid document ID %q", index, j, put.ID)
		}
	}
	for j, id := range c.Corpus.Delete {
		if id == "" {
			return fmt.Errorf("cycles[%d].corpus.delete[%d]: id is required", index, j)
		}
	}
	switch model.Trigger(c.Run.Trigger) {
	case "", model.TriggerManual, model.TriggerScheduled, model.TriggerDocument, model.TriggerWatch:
	default:
		return fmt.Errorf("cycles[%d].run: unknown trigger %q", index, c.Run.Trigger)
	}
	if c.Expect == nil {
		return nil
	}
	switch model.CycleStatus(c.Expect.Status) {
	case "", model.StatusSucceeded, model.StatusPartiallyFailed, model.StatusFailed:
	default:
		return fmt.Errorf("cycles[%d].expect: unknown status %q", index, c.Expect.Status)
	}
	if c.Expect.NoEntries && len(c.Expect.Entries) > 0 {
		return fmt.Errorf("cycles[%d].expect: no_entries conflicts with entries", index)
	}
	for j, e := range c.Expect.Entries {
		if e.Document == "" {
			return fmt.Errorf("cycles[%d].expect.entries[%d]: document is required", index, j)
		}
		if k := model.ChangeKind(e.Kind); !k.Valid() || k == model.KindUnchanged {
			return fmt.Errorf("cycles[%d].expect.entries[%d]: invalid kind %q", index, j, e.Kind)
		}
	}
	for j, f := range c.Expect.Failures {
		if f.Document == "" {
			return fmt.Errorf("cycles[%d].expect.failures[%d]: document is required", index, j)
		}
		switch model.FailureKind(f.Kind) {
		case model.FailureFetch, model.FailureDiff:
		default:
			return fmt.Errorf("cycles[%d].expect.failures[%d]: invalid kind %q", index, j, f.Kind)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, cycles int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSnapshotPresent:
		if a.Document == "" {
			return fmt.Errorf("assertions[%d]: document is required for snapshot_present", index)
		}
		if a.Cycle < 0 || a.Cycle > cycles {
			return fmt.Errorf("assertions[%d]: cycle %d out of range 1..%d", index, a.Cycle, cycles)
		}
	case AssertSnapshotAbsent:
		if a.Document == "" {
			return fmt.Errorf("assertions[%d]: document is required for snapshot_absent", index)
		}
	case AssertChangelogCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for changelog_count", index)
		}
	case AssertChangelogSequence:
		if a.Sequence == nil {
			return fmt.Errorf("assertions[%d]: sequence is required for changelog_sequence", index)
		}
	case AssertChangelogContains:
		if a.Document == "" {
			return fmt.Errorf("assertions[%d]: document is required for changelog_contains", index)
		}
		if a.Kind != "" && !model.ChangeKind(a.Kind).Valid() {
			return fmt.Errorf("assertions[%d]: invalid kind %q", index, a.Kind)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
