package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixture describes the pages a MemoryLauncher serves.
type Fixture struct {
	Pages map[string]Page `yaml:"pages"`
}

// Page is a static page keyed by URL or path.
type Page struct {
	Elements map[string]Element `yaml:"elements"`
}

// Element is one selectable node.
type Element struct {
	Text   string `yaml:"text"`
	Hidden bool   `yaml:"hidden"`
	// DelayMs keeps the element invisible for this long after navigation.
	DelayMs int `yaml:"delayMs"`
	// Href makes a click navigate.
	Href string `yaml:"href"`
	// Echo appends the current value of another element to Text.
	Echo string `yaml:"echo"`
	// Crash makes a click kill the browser.
	Crash bool `yaml:"crash"`
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &f, nil
}

// MemoryLauncher serves a Fixture from memory. Each session keeps its own
// input values, so sessions are isolated exactly like separate browsers.
type MemoryLauncher struct {
	Fixture *Fixture
	// LaunchErr, when set, makes every Launch fail.
	LaunchErr error

	open     atomic.Int64
	launched atomic.Int64
}

// NewMemoryLauncher returns a launcher over f.
func NewMemoryLauncher(f *Fixture) *MemoryLauncher {
	return &MemoryLauncher{Fixture: f}
}

// Launch opens a new isolated session.
func (l *MemoryLauncher) Launch(ctx context.Context) (Session, error) {
	if l.LaunchErr != nil {
		return nil, &SessionError{Op: "launch", Err: l.LaunchErr}
	}
	if err := ctx.Err(); err != nil {
		return nil, &SessionError{Op: "launch", Err: err}
	}
	l.open.Add(1)
	l.launched.Add(1)
	return &memorySession{launcher: l, values: make(map[string]string)}, nil
}

// Open returns the number of sessions not yet closed.
func (l *MemoryLauncher) Open() int { return int(l.open.Load()) }

// Launched returns the number of sessions ever created.
func (l *MemoryLauncher) Launched() int { return int(l.launched.Load()) }

var errCrashed = errors.New("browser process exited")

type memorySession struct {
	launcher *MemoryLauncher

	mu       sync.Mutex
	url      string
	page     *Page
	loadedAt time.Time
	values   map[string]string
	crashed  bool
	closed   bool
}

func (s *memorySession) lookup(raw string) (*Page, bool) {
	pages := s.launcher.Fixture.Pages
	if p, ok := pages[raw]; ok {
		return &p, true
	}
	if u, err := url.Parse(raw); err == nil {
		path := u.Path
		if path == "" {
			path = "/"
		}
		if p, ok := pages[path]; ok {
			return &p, true
		}
	}
	return nil, false
}

func (s *memorySession) check(op string) error {
	if s.closed {
		return &SessionError{Op: op, Err: errors.New("session closed")}
	}
	if s.crashed {
		return &SessionError{Op: op, Err: errCrashed}
	}
	return nil
}

func (s *memorySession) Navigate(ctx context.Context, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("navigate"); err != nil {
		return err
	}
	p, ok := s.lookup(raw)
	if !ok {
		return fmt.Errorf("page load error net::ERR_NAME_NOT_RESOLVED: %s", raw)
	}
	s.url, s.page, s.loadedAt = raw, p, time.Now()
	return nil
}

// waitFor blocks until selector is visible on the current page or ctx ends.
func (s *memorySession) waitFor(ctx context.Context, op, selector string) (Element, error) {
	s.mu.Lock()
	if err := s.check(op); err != nil {
		s.mu.Unlock()
		return Element{}, err
	}
	if s.page == nil {
		s.mu.Unlock()
		return Element{}, fmt.Errorf("no page loaded")
	}
	el, ok := s.page.Elements[selector]
	visibleAt := s.loadedAt.Add(time.Duration(el.DelayMs) * time.Millisecond)
	s.mu.Unlock()

	if ok && !el.Hidden {
		wait := time.Until(visibleAt)
		if wait <= 0 {
			return el, nil
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
			return el, nil
		case <-ctx.Done():
			return Element{}, ctx.Err()
		}
	}
	<-ctx.Done()
	return Element{}, ctx.Err()
}

func (s *memorySession) Click(ctx context.Context, selector string) error {
	el, err := s.waitFor(ctx, "click", selector)
	if err != nil {
		return err
	}
	if el.Crash {
		s.mu.Lock()
		s.crashed = true
		s.mu.Unlock()
		return &SessionError{Op: "click", Err: errCrashed}
	}
	if el.Href != "" {
		return s.Navigate(ctx, el.Href)
	}
	return nil
}

func (s *memorySession) Fill(ctx context.Context, selector, text string) error {
	if _, err := s.waitFor(ctx, "fill", selector); err != nil {
		return err
	}
	s.mu.Lock()
	s.values[selector] = text
	s.mu.Unlock()
	return nil
}

func (s *memorySession) WaitVisible(ctx context.Context, selector string) error {
	_, err := s.waitFor(ctx, "wait", selector)
	return err
}

func (s *memorySession) Text(ctx context.Context, selector string) (string, error) {
	el, err := s.waitFor(ctx, "text", selector)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[selector]; ok {
		return v, nil
	}
	text := el.Text
	if el.Echo != "" {
		text += s.values[el.Echo]
	}
	return text, nil
}

func (s *memorySession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("screenshot"); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *memorySession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.launcher.open.Add(-1)
	return nil
}

// String identifies the session's current page, for debugging.
func (s *memorySession) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "memory:" + strings.TrimSpace(s.url)
}
