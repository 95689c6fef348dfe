package testcase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/qaflow/pkg/action"
)

// ValidationError is one finding from ValidateFile.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // e.g. "actions/2/selector"
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any finding is an error rather than a warning.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile checks a stored test case document in three phases:
// structural (JSON shape), semantic (JSON Schema) and domain (action rules
// and selector lint). The test case is returned when the domain phase ran.
func ValidateFile(path string) (*TestCase, []*ValidationError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*ValidationError{structural("", err.Error())}
	}
	return ValidateDocument(data)
}

// ValidateDocument is ValidateFile for in-memory content.
func ValidateDocument(data []byte) (*TestCase, []*ValidationError) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, []*ValidationError{structural("", fmt.Sprintf("invalid JSON: %v", err))}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, []*ValidationError{structural("", "document must be a JSON object")}
	}

	if errs := validateSemantic(doc); len(errs) > 0 {
		return nil, errs
	}

	var errs []*ValidationError
	rawActions, _ := obj["actions"].([]any)
	for i, raw := range rawActions {
		candidate, _ := raw.(map[string]any)
		a, verr := action.Validate(candidate)
		if verr != nil {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("actions/%d/%s", i, verr.Field),
				Message:  fmt.Sprintf("%s: %s", verr.Reason, verr.Message),
				Severity: "error",
			})
			continue
		}
		for _, w := range action.Lint(a) {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("actions/%d", i),
				Message:  w,
				Severity: "warning",
			})
		}
	}
	if name, _ := obj["name"].(string); ValidateName(name) != nil {
		errs = append(errs, &ValidationError{
			Phase: "domain", Path: "name", Message: fmt.Sprintf("invalid name %q", name), Severity: "error",
		})
	}
	if HasErrors(errs) {
		return nil, errs
	}

	tc, err := Decode(data)
	if err != nil {
		return nil, append(errs, structural("", err.Error()))
	}
	return tc, errs
}

func structural(path, msg string) *ValidationError {
	return &ValidationError{Phase: "structural", Path: path, Message: msg, Severity: "error"}
}

func semantic(path, msg string) *ValidationError {
	return &ValidationError{Phase: "semantic", Path: path, Message: msg, Severity: "error"}
}

func validateSemantic(doc any) []*ValidationError {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{semantic("", fmt.Sprintf("generate schema: %v", err))}
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return []*ValidationError{semantic("", fmt.Sprintf("unmarshal schema: %v", err))}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("testcase-v1.json", schemaDoc); err != nil {
		return []*ValidationError{semantic("", fmt.Sprintf("add schema resource: %v", err))}
	}
	sch, err := c.Compile("testcase-v1.json")
	if err != nil {
		return []*ValidationError{semantic("", fmt.Sprintf("compile schema: %v", err))}
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []*ValidationError{semantic("", err.Error())}
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, semantic(strings.Join(cause.InstanceLocation, "/"), fmt.Sprintf("%v", cause.ErrorKind)))
		}
		return errs
	}
	return nil
}

// flattenValidationErrors collects leaf errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
