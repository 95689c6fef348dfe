package testcase

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validDoc = `{
  "name": "login-0a1b2c3d4e5f",
  "source": "src/Login.tsx",
  "targetUrl": "http://localhost:3000",
  "fingerprint": "0a1b2c3d4e5f",
  "createdAt": "2026-03-01T12:00:00Z",
  "actions": [
    {"action": "navigate", "url": "/login"},
    {"action": "fill", "selector": "#user", "text": "alice"},
    {"action": "wait", "durationMs": 100}
  ]
}`

func TestValidateFile_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login.json")
	if err := os.WriteFile(path, []byte(validDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	tc, errs := ValidateFile(path)
	if HasErrors(errs) {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if tc == nil || len(tc.Actions) != 3 {
		t.Fatalf("test case = %+v", tc)
	}
}

func TestValidateFile_Missing(t *testing.T) {
	_, errs := ValidateFile(filepath.Join(t.TempDir(), "nope.json"))
	if len(errs) != 1 || errs[0].Phase != "structural" {
		t.Errorf("errs = %v", errs)
	}
}

func TestValidateDocument_Phases(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		phase string
	}{
		{"not json", `{`, "structural"},
		{"not object", `[]`, "structural"},
		{"missing actions", `{"name":"a","source":"s","fingerprint":"f","createdAt":"2026-03-01T12:00:00Z"}`, "semantic"},
		{"empty actions", strings.Replace(validDoc, `"actions": [`, `"actions": [], "x": [`, 1), "semantic"},
		{"unknown kind", strings.Replace(validDoc, `"wait", "durationMs": 100`, `"bogus"`, 1), "semantic"},
		{"bad name", strings.Replace(validDoc, `"login-0a1b2c3d4e5f"`, `"Login Case"`, 1), "domain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, errs := ValidateDocument([]byte(tt.doc))
			if !HasErrors(errs) {
				t.Fatalf("expected errors, got test case %+v", tc)
			}
			if errs[0].Phase != tt.phase {
				t.Errorf("phase = %q, want %q (%v)", errs[0].Phase, tt.phase, errs)
			}
		})
	}
}

// Lint findings are warnings and do not block.
func TestValidateDocument_Warnings(t *testing.T) {
	doc := strings.Replace(validDoc, `"#user"`, `"a[onload=x]"`, 1)
	tc, errs := ValidateDocument([]byte(doc))
	if HasErrors(errs) {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if tc == nil {
		t.Fatal("expected test case")
	}
	if len(errs) != 1 || errs[0].Severity != "warning" || errs[0].Path != "actions/1" {
		t.Errorf("errs = %v", errs)
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"assertVisible"`) {
		t.Error("schema should embed action kinds")
	}
}
