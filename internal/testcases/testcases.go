// Package testcases loads labeled evaluation sets for batch query testing.
//
// A test set is a YAML file mapping each query to its expected answer:
//
//	"How do I define a schema?": "Use the schema builder ..."
//	"What storage backends exist?": "PostgreSQL with pgvector ..."
//
// Keys are unique by construction; ordering is not meaningful.
package testcases

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyTestSet indicates the test set exists but contains no cases.
	ErrEmptyTestSet = errors.New("test set is empty")

	// ErrInvalidTestName indicates the test set name is unsafe to resolve to
	// a file.
	ErrInvalidTestName = errors.New("invalid test set name")
)

// Loader resolves test sets by name inside a fixed directory.
type Loader struct {
	dir string
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads the test set <dir>/<name>.yaml and returns its query→expected
// answer mapping. An existing-but-empty set returns ErrEmptyTestSet.
func (l *Loader) Load(name string) (map[string]string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTestName, name)
	}

	path := filepath.Join(l.dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test set %q: %w", name, err)
	}

	var cases map[string]string
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parsing test set %q: %w", name, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("test set %q: %w", name, ErrEmptyTestSet)
	}

	return cases, nil
}
