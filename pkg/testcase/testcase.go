// Package testcase defines compiled test cases and the stores that persist them
// by name.
package testcase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ormasoftchile/qaflow/pkg/action"
)

// TestCase is a compiled, validated, ordered action program. It is never
// mutated after creation; recompiling produces a new value.
type TestCase struct {
	Name        string          `json:"name" jsonschema:"description=Store key derived from source and fingerprint"`
	Source      string          `json:"source" jsonschema:"description=Source artifact the scenario was generated from"`
	TargetURL   string          `json:"targetUrl,omitempty"`
	Fingerprint string          `json:"fingerprint" jsonschema:"description=sha256 of the canonical action list"`
	CreatedAt   time.Time       `json:"createdAt"`
	Generator   string          `json:"generator,omitempty" jsonschema:"description=Model or tool that produced the scenario"`
	Actions     action.Sequence `json:"actions"`
}

// Encode renders the stored document form, newline terminated.
func Encode(tc *TestCase) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tc); err != nil {
		return nil, fmt.Errorf("encode test case: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a stored document. Every action is revalidated.
func Decode(data []byte) (*TestCase, error) {
	var tc TestCase
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("decode test case: %w", err)
	}
	if len(tc.Actions) == 0 {
		return nil, fmt.Errorf("decode test case %q: no actions", tc.Name)
	}
	return &tc, nil
}

// Store persists test cases by name.
type Store interface {
	// Put stores tc under name, replacing any previous value.
	Put(ctx context.Context, name string, tc *TestCase) error
	Get(ctx context.Context, name string) (*TestCase, error)
	// List returns stored names in ascending order.
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

var (
	// ErrNotFound is wrapped by StoreError when a name does not exist.
	ErrNotFound = errors.New("test case not found")
	// ErrInvalidName is wrapped by StoreError for names unsafe as keys.
	ErrInvalidName = errors.New("invalid test case name")
)

// StoreError reports a failed store operation.
type StoreError struct {
	Op   string
	Name string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,199}$`)

// ValidateName checks that name is usable as a file name and key.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
