package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/docbridge/internal/queryir"
)

// Northwind names the built-in fixture, usable as a schema and as a
// document fixture.
const Northwind = "northwind"

// Scenario defines one translation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Schema is a directory of CUE schema files, or "northwind" for the
	// built-in fixture. Relative directories resolve against the scenario
	// file's location.
	Schema string `yaml:"schema"`

	// Fixture seeds the store with a built-in document set. Only
	// "northwind" is defined.
	Fixture string `yaml:"fixture,omitempty"`

	// Documents seeds collections with relaxed Extended JSON documents,
	// after the fixture.
	Documents map[string][]string `yaml:"documents,omitempty"`

	// Command is the statement under test, in the command-file format.
	Command yaml.Node `yaml:"command"`

	// Expect lists what the command must produce.
	Expect Expect `yaml:"expect"`

	stmt  queryir.Statement
	equiv queryir.Statement
	seed  map[string][]bson.D
}

// Expect lists a scenario's expectations. Unset fields are not checked.
type Expect struct {
	// Error is the expected error code. A scenario expecting an error may
	// not expect a plan or rows.
	Error string `yaml:"error,omitempty"`

	// Construct is the expected offending construct of a translation error.
	Construct string `yaml:"construct,omitempty"`

	// Collection and Stages describe the expected pipeline of a SELECT.
	Collection string   `yaml:"collection,omitempty"`
	Stages     []string `yaml:"stages,omitempty"`

	// Ops and FanOut describe the expected ops of a write.
	Ops    []string `yaml:"ops,omitempty"`
	FanOut []string `yaml:"fanout,omitempty"`

	// Equivalent is a second command that must compile to the same plan.
	Equivalent yaml.Node `yaml:"equivalent,omitempty"`

	// Rows and Affected are checked after executing the command.
	Rows     [][]string `yaml:"rows,omitempty"`
	Affected *int64     `yaml:"affected,omitempty"`
}

// executes reports whether the scenario needs the command executed.
func (e *Expect) executes() bool {
	return e.Rows != nil || e.Affected != nil
}

// LoadScenario reads and parses a scenario YAML file. Relative schema
// directories resolve against the file's directory.
//
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative schema directory against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "stage:" vs "stages:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && scenario.Schema != Northwind && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := map[string]string{}
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if prev, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(p), s.Name, prev)
		}
		names[s.Name] = filepath.Base(p)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks required fields and decodes the commands and
// seed documents.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Schema == "" {
		return errors.New("schema is required")
	}
	if s.Fixture != "" && s.Fixture != Northwind {
		return fmt.Errorf("unknown fixture %q", s.Fixture)
	}
	if s.Command.Kind == 0 {
		return errors.New("command is required")
	}

	stmt, err := queryir.DecodeNode(&s.Command)
	if err != nil {
		return fmt.Errorf("command: %w", err)
	}
	s.stmt = stmt

	if s.Expect.Equivalent.Kind != 0 {
		equiv, err := queryir.DecodeNode(&s.Expect.Equivalent)
		if err != nil {
			return fmt.Errorf("expect.equivalent: %w", err)
		}
		s.equiv = equiv
	}

	e := &s.Expect
	plan := e.Collection != "" || e.Stages != nil || e.Ops != nil || e.FanOut != nil || s.equiv != nil
	switch {
	case e.Error != "" && (plan || e.executes()):
		return errors.New("expect.error cannot be combined with plan or row expectations")
	case e.Error == "" && e.Construct != "":
		return errors.New("expect.construct requires expect.error")
	case e.Error == "" && !plan && !e.executes():
		return errors.New("expect must name at least one expectation")
	}

	s.seed = make(map[string][]bson.D, len(s.Documents))
	for coll, docs := range s.Documents {
		for i, text := range docs {
			var d bson.D
			if err := bson.UnmarshalExtJSON([]byte(text), false, &d); err != nil {
				return fmt.Errorf("documents.%s[%d]: %w", coll, i, err)
			}
			s.seed[coll] = append(s.seed[coll], d)
		}
	}
	return nil
}
