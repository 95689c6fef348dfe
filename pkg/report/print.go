package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/qaflow/pkg/engine"
)

// Status glyphs, readable without color.
const (
	GlyphPassed  = "✓"
	GlyphFailed  = "✗"
	GlyphSkipped = "○"
	GlyphWarn    = "⚠"
)

type styles struct {
	header  lipgloss.Style
	passed  lipgloss.Style
	failed  lipgloss.Style
	skipped lipgloss.Style
	dim     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	re := lipgloss.NewRenderer(w)
	return styles{
		header:  re.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		passed:  re.NewStyle().Foreground(lipgloss.Color("42")),
		failed:  re.NewStyle().Foreground(lipgloss.Color("196")),
		skipped: re.NewStyle().Foreground(lipgloss.Color("214")),
		dim:     re.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// PrintOptions controls Print.
type PrintOptions struct {
	// Verbose lists every step, not only failures.
	Verbose bool
}

// Print renders a human summary of r to w. Color is used only when w is a
// terminal.
func Print(w io.Writer, r *Report, opts PrintOptions) {
	st := newStyles(w)

	fmt.Fprintln(w, st.header.Render("qaflow run "+r.RunID))
	for _, res := range r.Results {
		glyph := st.passed.Render(GlyphPassed)
		if !res.Passed() {
			glyph = st.failed.Render(GlyphFailed)
		}
		name := res.TestCaseName
		if res.Attempt > 1 {
			name = fmt.Sprintf("%s (attempt %d)", name, res.Attempt)
		}
		fmt.Fprintf(w, "  %s %s %s\n", glyph, name, st.dim.Render(fmtDuration(res.Duration())))
		if res.Error != "" {
			fmt.Fprintf(w, "      %s %s\n", st.skipped.Render(GlyphWarn), res.Error)
		}
		for i, s := range res.Steps {
			if !opts.Verbose && s.Status == engine.StepPassed {
				continue
			}
			if !opts.Verbose && s.Status == engine.StepSkipped && res.Error != "" {
				continue
			}
			fmt.Fprintf(w, "      %s step %d %s", stepGlyph(st, s.Status), i+1, s.Kind)
			if s.Reason != "" {
				fmt.Fprintf(w, ": %s", s.Reason)
			}
			fmt.Fprintln(w)
			if s.ArtifactRef != "" {
				fmt.Fprintf(w, "        %s\n", st.dim.Render("screenshot: "+s.ArtifactRef))
			}
		}
	}

	sum := r.Summary
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d test cases: %s, %s\n",
		sum.Total,
		st.passed.Render(fmt.Sprintf("%d passed", sum.Passed)),
		failedStyle(st, sum.Failed).Render(fmt.Sprintf("%d failed", sum.Failed)))
	fmt.Fprintf(w, "%d steps: %d passed, %d failed, %d skipped\n",
		sum.Steps.Total, sum.Steps.Passed, sum.Steps.Failed, sum.Steps.Skipped)
}

func stepGlyph(st styles, s engine.StepStatus) string {
	switch s {
	case engine.StepPassed:
		return st.passed.Render(GlyphPassed)
	case engine.StepFailed:
		return st.failed.Render(GlyphFailed)
	default:
		return st.skipped.Render(GlyphSkipped)
	}
}

func failedStyle(st styles, n int) lipgloss.Style {
	if n == 0 {
		return st.dim
	}
	return st.failed
}

func fmtDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("(%dms)", d.Milliseconds())
	}
	return fmt.Sprintf("(%.1fs)", d.Seconds())
}
