package testcase

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a Draft 2020-12 schema for stored test case
// documents using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&TestCase{})
	s.ID = "https://github.com/ormasoftchile/qaflow/schemas/testcase-v1.json"
	s.Title = "qaflow test case v1"
	s.Description = "Compiled browser test case as persisted by the test case store"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
