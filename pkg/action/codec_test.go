package action

import (
	"encoding/json"
	"strings"
	"testing"
)

const canonicalList = `[{"action":"navigate","url":"http://x/"},` +
	`{"action":"navigate","url":"/search?q=a&page=2"},` +
	`{"action":"click","selector":"#login"},` +
	`{"action":"click","selector":"ul.menu > li:first-child"},` +
	`{"action":"fill","selector":"#user","text":"alice"},` +
	`{"action":"assertText","selector":".welcome","text":"Hello"},` +
	`{"action":"assertVisible","selector":"#logout"},` +
	`{"action":"wait","selector":"#done"},` +
	`{"action":"wait","durationMs":250}]`

func TestSequence_RoundTripIsByteIdentical(t *testing.T) {
	var seq Sequence
	if err := json.Unmarshal([]byte(canonicalList), &seq); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(seq) != 9 {
		t.Fatalf("len = %d, want 9", len(seq))
	}
	out, err := EncodeJSON(seq)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != canonicalList {
		t.Errorf("round trip differs:\n got %s\nwant %s", out, canonicalList)
	}
}

func TestSequence_UnmarshalRejectsInvalidElement(t *testing.T) {
	var seq Sequence
	err := json.Unmarshal([]byte(`[{"action":"click","selector":"#a"},{"action":"bogus"}]`), &seq)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "actions[1]") {
		t.Errorf("error should locate element: %v", err)
	}
}

// Aliases are normalized on the way in and never written back out.
func TestMarshal_CanonicalizesAliases(t *testing.T) {
	a, verr := Validate(map[string]any{"action": "goto", "url": "/", "timeout": 500})
	if verr != nil {
		t.Fatal(verr)
	}
	data, err := Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"action":"navigate","url":"/","timeoutMs":500}` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestToMap_RevalidatesToSameAction(t *testing.T) {
	var seq Sequence
	if err := json.Unmarshal([]byte(canonicalList), &seq); err != nil {
		t.Fatal(err)
	}
	for i, a := range seq {
		back, verr := Validate(ToMap(a))
		if verr != nil {
			t.Fatalf("[%d] revalidate: %v", i, verr)
		}
		if back != a {
			t.Errorf("[%d] got %#v, want %#v", i, back, a)
		}
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["type"] != "array" {
		t.Errorf("type = %v, want array", doc["type"])
	}
	for _, k := range Kinds {
		if !strings.Contains(string(data), `"const": "`+string(k)+`"`) {
			t.Errorf("schema missing kind %s", k)
		}
	}
}
