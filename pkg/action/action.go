// Package action defines the closed vocabulary of browser actions a test case
// can contain, together with the validator that turns untrusted candidate
// records into typed actions.
package action

import (
	"time"
)

// Kind identifies an action variant.
type Kind string

const (
	KindNavigate      Kind = "navigate"
	KindClick         Kind = "click"
	KindFill          Kind = "fill"
	KindAssertText    Kind = "assertText"
	KindAssertVisible Kind = "assertVisible"
	KindWait          Kind = "wait"
)

// Kinds lists every accepted kind in declaration order.
var Kinds = []Kind{KindNavigate, KindClick, KindFill, KindAssertText, KindAssertVisible, KindWait}

// Category groups kinds that share a default timeout.
type Category string

const (
	CategoryNavigation  Category = "navigation"
	CategoryInteraction Category = "interaction"
	CategoryAssertion   Category = "assertion"
)

// Category returns the timeout category of the kind.
func (k Kind) Category() Category {
	switch k {
	case KindNavigate:
		return CategoryNavigation
	case KindAssertText, KindAssertVisible:
		return CategoryAssertion
	default:
		return CategoryInteraction
	}
}

// Action is one atomic browser instruction. The set of implementations is
// closed: only the types in this package satisfy it.
type Action interface {
	Kind() Kind
	// Timeout is the per-action override, zero when the kind default applies.
	Timeout() time.Duration
	sealed()
}

// Options holds fields shared by every variant.
type Options struct {
	TimeoutMs int64
}

// Timeout returns the override as a duration.
func (o Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// Navigate loads a URL. Relative URLs resolve against the target address.
type Navigate struct {
	Options
	URL string
}

// Click clicks the first element matching Selector.
type Click struct {
	Options
	Selector string
}

// Fill types Text into the element matching Selector, replacing its value.
type Fill struct {
	Options
	Selector string
	Text     string
}

// AssertText checks that the element matching Selector contains Expected.
type AssertText struct {
	Options
	Selector string
	Expected string
}

// AssertVisible checks that the element matching Selector is visible.
type AssertVisible struct {
	Options
	Selector string
}

// Wait either waits for Selector to become visible or, when Selector is
// empty, sleeps for Duration.
type Wait struct {
	Options
	Selector string
	Duration time.Duration
}

func (Navigate) Kind() Kind      { return KindNavigate }
func (Click) Kind() Kind         { return KindClick }
func (Fill) Kind() Kind          { return KindFill }
func (AssertText) Kind() Kind    { return KindAssertText }
func (AssertVisible) Kind() Kind { return KindAssertVisible }
func (Wait) Kind() Kind          { return KindWait }

func (Navigate) sealed()      {}
func (Click) sealed()         {}
func (Fill) sealed()          {}
func (AssertText) sealed()    {}
func (AssertVisible) sealed() {}
func (Wait) sealed()          {}

// SelectorOf returns the selector an action targets, or "" for navigate and
// duration waits.
func SelectorOf(a Action) string {
	switch v := a.(type) {
	case Click:
		return v.Selector
	case Fill:
		return v.Selector
	case AssertText:
		return v.Selector
	case AssertVisible:
		return v.Selector
	case Wait:
		return v.Selector
	}
	return ""
}

// Describe renders a short human-readable label, e.g. `click #login`.
func Describe(a Action) string {
	switch v := a.(type) {
	case Navigate:
		return "navigate " + v.URL
	case Wait:
		if v.Selector == "" {
			return "wait " + v.Duration.String()
		}
		return "wait " + v.Selector
	case Fill:
		return "fill " + v.Selector
	case AssertText:
		return "assertText " + v.Selector
	}
	return string(a.Kind()) + " " + SelectorOf(a)
}
