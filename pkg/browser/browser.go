// Package browser abstracts the browser the engine drives. A Session is one
// isolated browser with its own cookies and storage; it is never shared.
package browser

import (
	"context"
	"errors"
	"fmt"
)

// Session is a live, isolated browser. Each method blocks until the
// operation resolves or ctx's deadline passes.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	// Fill replaces the value of the matching input.
	Fill(ctx context.Context, selector, text string) error
	WaitVisible(ctx context.Context, selector string) error
	// Text returns the visible text of the first matching element.
	Text(ctx context.Context, selector string) (string, error)
	// Screenshot returns a PNG of the current page.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the browser. It is safe to call more than once.
	Close() error
}

// Launcher creates sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// SessionError signals infrastructure trouble: the browser could not be
// started or died mid-run. It is distinct from an action failing against a
// healthy page.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// IsSessionError reports whether err is or wraps a *SessionError.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}
