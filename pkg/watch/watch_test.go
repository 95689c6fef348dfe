package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ormasoftchile/qaflow/pkg/action"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
)

func TestWatcher_BatchesChanges(t *testing.T) {
	dir := t.TempDir()
	store, err := testcase.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	batches := make(chan []string, 4)
	w := &Watcher{
		Dir:      dir,
		Debounce: 100 * time.Millisecond,
		Handler:  func(_ context.Context, names []string) { batches <- names },
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	for _, name := range []string{"beta", "alpha", "beta"} {
		tc := &testcase.TestCase{Name: name, Source: name, Actions: action.Sequence{action.Navigate{URL: "http://x/"}}}
		if err := store.Put(ctx, name, tc); err != nil {
			t.Fatal(err)
		}
	}
	// not a test case document
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	select {
	case got := <-batches:
		if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
			t.Errorf("batch = %v, want [alpha beta]", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no batch delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestWatcher_RequiresHandler(t *testing.T) {
	w := &Watcher{Dir: t.TempDir()}
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := &Watcher{Dir: filepath.Join(t.TempDir(), "nope"), Handler: func(context.Context, []string) {}}
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
