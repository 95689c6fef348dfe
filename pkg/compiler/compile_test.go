package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/qaflow/pkg/action"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func decode(t *testing.T, s string) []map[string]any {
	t.Helper()
	list, err := ParseCandidates(s)
	if err != nil {
		t.Fatalf("ParseCandidates: %v", err)
	}
	return list
}

// The documented lossy scenario: one bogus kind among three candidates.
func TestCompile_LossyDropsUnknownKind(t *testing.T) {
	store := testcase.NewMemoryStore()
	candidates := decode(t, `[{"action":"navigate","url":"http://x/"},{"action":"click","selector":"#login"},{"action":"bogus"}]`)

	res, err := Compile(context.Background(), candidates, Options{
		Mode: ModeLossy, Source: "src/Login.tsx", Store: store, Now: fixedNow,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(res.TestCase.Actions) != 2 {
		t.Fatalf("actions = %d, want 2", len(res.TestCase.Actions))
	}
	if len(res.Report.Dropped) != 1 {
		t.Fatalf("dropped = %d, want 1", len(res.Report.Dropped))
	}
	d := res.Report.Dropped[0]
	if d.Index != 2 || d.Error.Reason != action.ReasonUnknownKind {
		t.Errorf("drop = %+v", d)
	}
	if !res.Stored {
		t.Error("expected test case to be stored")
	}
	if _, err := store.Get(context.Background(), res.TestCase.Name); err != nil {
		t.Errorf("stored test case not retrievable: %v", err)
	}
}

// Lossy output keeps exactly the valid candidates in their original order.
func TestCompile_LossyPreservesOrder(t *testing.T) {
	candidates := decode(t, `[
		{"action":"click"},
		{"action":"navigate","url":"/a"},
		{"action":"fill","selector":"#q","text":"go"},
		{"action":"assertText","selector":"","text":"x"},
		{"action":"wait","durationMs":5},
		42,
		{"action":"assertVisible","selector":"#r"}
	]`)
	res, err := Compile(context.Background(), candidates, Options{Source: "search.vue", Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, a := range res.TestCase.Actions {
		kinds = append(kinds, string(a.Kind()))
	}
	if got := strings.Join(kinds, ","); got != "navigate,fill,wait,assertVisible" {
		t.Errorf("kinds = %s", got)
	}
	var dropped []int
	for _, d := range res.Report.Dropped {
		dropped = append(dropped, d.Index)
	}
	if len(dropped) != 3 || dropped[0] != 0 || dropped[1] != 3 || dropped[2] != 5 {
		t.Errorf("dropped indexes = %v, want [0 3 5]", dropped)
	}
	if res.Report.Accepted+len(res.Report.Dropped) != res.Report.Candidates {
		t.Errorf("report does not add up: %+v", res.Report)
	}
}

func TestCompile_StrictAbortsOnFirstInvalid(t *testing.T) {
	store := testcase.NewMemoryStore()
	candidates := decode(t, `[{"action":"navigate","url":"/"},{"action":"click","selector":""},{"action":"bogus"}]`)

	res, err := Compile(context.Background(), candidates, Options{Mode: ModeStrict, Source: "a.tsx", Store: store})
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	var cf *CompilationFailure
	if !errors.As(err, &cf) {
		t.Fatalf("err = %v, want CompilationFailure", err)
	}
	if len(cf.Report.Dropped) != 1 || cf.Report.Dropped[0].Error.Reason != action.ReasonEmptySelector {
		t.Errorf("report = %+v", cf.Report)
	}
	if names, _ := store.List(context.Background()); len(names) != 0 {
		t.Errorf("store should be empty, has %v", names)
	}
}

func TestCompile_NoValidActionsFails(t *testing.T) {
	for _, mode := range []Mode{ModeLossy, ModeStrict} {
		store := testcase.NewMemoryStore()
		candidates := decode(t, `[{"action":"bogus"},{"selector":"#a"}]`)
		_, err := Compile(context.Background(), candidates, Options{Mode: mode, Source: "a.tsx", Store: store})
		var cf *CompilationFailure
		if !errors.As(err, &cf) {
			t.Fatalf("%s: err = %v, want CompilationFailure", mode, err)
		}
		if names, _ := store.List(context.Background()); len(names) != 0 {
			t.Errorf("%s: store should be empty, has %v", mode, names)
		}
	}

	_, err := Compile(context.Background(), nil, Options{Source: "a.tsx"})
	var cf *CompilationFailure
	if !errors.As(err, &cf) {
		t.Errorf("empty input: err = %v", err)
	}
}

// Identical scenarios compile to the same name, different ones do not.
func TestCompile_NameIsContentAddressed(t *testing.T) {
	a := decode(t, `[{"action":"navigate","url":"/"},{"action":"click","selector":"#go"}]`)
	b := decode(t, `[{"action":"goto","url":"/"},{"action":"click","selector":"#go","note":"ignored"}]`)
	c := decode(t, `[{"action":"navigate","url":"/"},{"action":"click","selector":"#stop"}]`)

	opts := Options{Source: "web/src/LoginForm.tsx", Now: fixedNow}
	ra, _ := Compile(context.Background(), a, opts)
	rb, _ := Compile(context.Background(), b, opts)
	rc, _ := Compile(context.Background(), c, opts)

	if ra.TestCase.Name != rb.TestCase.Name {
		t.Errorf("equivalent scenarios named differently: %s vs %s", ra.TestCase.Name, rb.TestCase.Name)
	}
	if ra.TestCase.Name == rc.TestCase.Name {
		t.Errorf("different scenarios share name %s", ra.TestCase.Name)
	}
	if !strings.HasPrefix(ra.TestCase.Name, "login-form-") || len(ra.TestCase.Name) != len("login-form-")+12 {
		t.Errorf("name = %q", ra.TestCase.Name)
	}
}

// Canonical list → compile → store → get → marshal is byte-identical.
func TestCompile_StoreRoundTripByteIdentical(t *testing.T) {
	const canonical = `[{"action":"navigate","url":"http://x/?a=1&b=2"},` +
		`{"action":"click","selector":"#login"},` +
		`{"action":"click","selector":"ul > li"},` +
		`{"action":"fill","selector":"#user","text":"alice"},` +
		`{"action":"assertText","selector":".welcome","text":"Hello"},` +
		`{"action":"assertVisible","selector":"#logout"},` +
		`{"action":"wait","selector":"#done"},` +
		`{"action":"wait","durationMs":500}]`

	store, err := testcase.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	res, err := Compile(context.Background(), decode(t, canonical), Options{Mode: ModeStrict, Source: "app.tsx", Store: store})
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(context.Background(), res.TestCase.Name)
	if err != nil {
		t.Fatal(err)
	}
	out, err := action.EncodeJSON(got.Actions)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != canonical {
		t.Errorf("round trip differs:\n got %s\nwant %s", out, canonical)
	}
	sum := sha256.Sum256([]byte(canonical))
	if want := hex.EncodeToString(sum[:]); res.TestCase.Fingerprint != want {
		t.Errorf("fingerprint = %s, want sha256 of the canonical list %s", res.TestCase.Fingerprint, want)
	}
	doc, err := os.ReadFile(store.Path(res.TestCase.Name))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(doc), `"ul > li"`) || !strings.Contains(string(doc), "a=1&b=2") {
		t.Errorf("stored document escapes selector or url:\n%s", doc)
	}
}

type failingStore struct{ testcase.Store }

func (failingStore) Put(ctx context.Context, name string, tc *testcase.TestCase) error {
	return &testcase.StoreError{Op: "put", Name: name, Err: errors.New("disk full")}
}

func TestCompile_StoreErrorPropagates(t *testing.T) {
	candidates := decode(t, `[{"action":"navigate","url":"/"}]`)
	_, err := Compile(context.Background(), candidates, Options{Source: "a.tsx", Store: failingStore{}})
	var se *testcase.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StoreError", err)
	}
}

func TestParseMode(t *testing.T) {
	if m, _ := ParseMode(""); m != ModeLossy {
		t.Errorf("default mode = %s", m)
	}
	if m, _ := ParseMode("STRICT"); m != ModeStrict {
		t.Errorf("mode = %s", m)
	}
	if _, err := ParseMode("yolo"); err == nil {
		t.Error("expected error")
	}
}

func TestName(t *testing.T) {
	tests := []struct{ source, want string }{
		{"src/components/LoginForm.tsx", "login-form-0123456789ab"},
		{"checkout_page.vue", "checkout-page-0123456789ab"},
		{"", "testcase-0123456789ab"},
		{"!!!.js", "testcase-0123456789ab"},
	}
	for _, tt := range tests {
		if got := Name(tt.source, "0123456789abcdef"); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}
