package compiler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"bare array", `[{"action":"click","selector":"#a"}]`, 1},
		{"actions object", `{"actions":[{"action":"click","selector":"#a"},{"action":"wait","durationMs":1}]}`, 2},
		{"code fence", "```json\n[{\"action\":\"navigate\",\"url\":\"/\"}]\n```", 1},
		{"prose around", "Here is your test:\n[{\"action\":\"navigate\",\"url\":\"/\"}]\nGood luck!", 1},
		{"empty array", `[]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCandidates(tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestParseCandidates_Errors(t *testing.T) {
	for _, text := range []string{"", "no json here", `{"steps": 3}`, "[not json]"} {
		if _, err := ParseCandidates(text); err == nil {
			t.Errorf("ParseCandidates(%q) should fail", text)
		}
	}
}

func TestLoadCandidatesFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	content := `actions:
  - action: navigate
    url: /login
  - action: wait
    durationMs: 200
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCandidatesFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1]["durationMs"] != 200 {
		t.Errorf("got %v", got)
	}
}
