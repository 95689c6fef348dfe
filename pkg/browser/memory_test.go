package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixture() *Fixture {
	return &Fixture{Pages: map[string]Page{
		"/": {Elements: map[string]Element{
			"#name":  {},
			"#greet": {Text: "Hello ", Echo: "#name"},
			"#late":  {Text: "late", DelayMs: 30},
			"#ghost": {Hidden: true},
			"#next":  {Href: "/next"},
			"#boom":  {Crash: true},
		}},
		"/next": {Elements: map[string]Element{"h1": {Text: "Next page"}}},
	}}
}

func timeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

func TestMemorySession_Basics(t *testing.T) {
	l := NewMemoryLauncher(fixture())
	s, err := l.Launch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := timeout(time.Second)
	defer cancel()
	if err := s.Navigate(ctx, "http://localhost:3000/"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := s.Fill(ctx, "#name", "alice"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Text(ctx, "#greet")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello alice" {
		t.Errorf("text = %q", got)
	}
	if err := s.Click(ctx, "#next"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Text(ctx, "h1"); got != "Next page" {
		t.Errorf("after click text = %q", got)
	}
	png, err := s.Screenshot(ctx)
	if err != nil || len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Errorf("screenshot = %v, %v", png, err)
	}
}

func TestMemorySession_WaitSemantics(t *testing.T) {
	l := NewMemoryLauncher(fixture())
	s, _ := l.Launch(context.Background())
	defer s.Close()
	s.Navigate(context.Background(), "/")

	ctx, cancel := timeout(time.Second)
	defer cancel()
	if err := s.WaitVisible(ctx, "#late"); err != nil {
		t.Errorf("delayed element should appear: %v", err)
	}

	short, cancel2 := timeout(20 * time.Millisecond)
	defer cancel2()
	if err := s.WaitVisible(short, "#ghost"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("hidden element err = %v", err)
	}
	short3, cancel3 := timeout(20 * time.Millisecond)
	defer cancel3()
	if err := s.Click(short3, "#missing"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("missing element err = %v", err)
	}
}

func TestMemorySession_NavigateUnknownPage(t *testing.T) {
	s, _ := NewMemoryLauncher(fixture()).Launch(context.Background())
	defer s.Close()
	err := s.Navigate(context.Background(), "/nowhere")
	if err == nil || IsSessionError(err) {
		t.Errorf("err = %v, want plain navigation error", err)
	}
}

// Values typed in one session are invisible to another.
func TestMemorySession_Isolation(t *testing.T) {
	l := NewMemoryLauncher(fixture())
	a, _ := l.Launch(context.Background())
	b, _ := l.Launch(context.Background())
	defer a.Close()
	defer b.Close()
	ctx := context.Background()
	a.Navigate(ctx, "/")
	b.Navigate(ctx, "/")
	a.Fill(ctx, "#name", "alice")

	got, err := b.Text(ctx, "#greet")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello " {
		t.Errorf("session b sees %q", got)
	}
	if l.Open() != 2 || l.Launched() != 2 {
		t.Errorf("open = %d launched = %d", l.Open(), l.Launched())
	}
}

func TestMemorySession_CrashIsSessionError(t *testing.T) {
	s, _ := NewMemoryLauncher(fixture()).Launch(context.Background())
	defer s.Close()
	ctx := context.Background()
	s.Navigate(ctx, "/")
	if err := s.Click(ctx, "#boom"); !IsSessionError(err) {
		t.Fatalf("err = %v, want SessionError", err)
	}
	if err := s.Navigate(ctx, "/"); !IsSessionError(err) {
		t.Errorf("dead session should keep failing, got %v", err)
	}
}

func TestMemoryLauncher_LaunchErr(t *testing.T) {
	l := &MemoryLauncher{Fixture: fixture(), LaunchErr: errors.New("no chrome")}
	if _, err := l.Launch(context.Background()); !IsSessionError(err) {
		t.Errorf("err = %v", err)
	}
}

func TestMemoryLauncher_CloseIsIdempotent(t *testing.T) {
	l := NewMemoryLauncher(fixture())
	s, _ := l.Launch(context.Background())
	s.Close()
	s.Close()
	if l.Open() != 0 {
		t.Errorf("open = %d", l.Open())
	}
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	os.WriteFile(path, []byte("pages:\n  /:\n    elements:\n      h1: {text: Home}\n"), 0o644)
	f, err := LoadFixture(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Pages["/"].Elements["h1"].Text != "Home" {
		t.Errorf("fixture = %+v", f)
	}

	os.WriteFile(path, []byte("pages: {}\nbogus: 1\n"), 0o644)
	if _, err := LoadFixture(path); err == nil {
		t.Error("unknown fields should be rejected")
	}
}

func TestChromeLauncher(t *testing.T) {
	if os.Getenv("QAFLOW_TEST_CHROME") == "" {
		t.Skip("QAFLOW_TEST_CHROME not set")
	}
	l := &ChromeLauncher{Headless: true}
	s, err := l.Launch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx, cancel := timeout(10 * time.Second)
	defer cancel()
	if err := s.Navigate(ctx, "data:text/html,<h1 id=t>hi</h1>"); err != nil {
		t.Fatal(err)
	}
	if got, err := s.Text(ctx, "#t"); err != nil || got != "hi" {
		t.Errorf("text = %q, %v", got, err)
	}
}
