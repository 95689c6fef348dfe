package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/qaflow/pkg/action"
	"github.com/ormasoftchile/qaflow/pkg/compiler"
	"github.com/ormasoftchile/qaflow/pkg/metrics"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
)

// --- compile ---

var (
	compileMode   string
	compileSource string
	compileTarget string
	compileDryRun bool
	compileJSON   bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [candidates.json|.yaml...]",
	Short: "Validate candidate actions and store the resulting test case",
	Long: `Compile a list of candidate actions into a named test case.

In strict mode the first invalid candidate aborts compilation and nothing
is stored. In lossy mode invalid candidates are dropped and reported, and
the test case is stored as long as at least one action survives.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompile,
}

func runCompile(cmd *cobra.Command, args []string) error {
	if compileSource != "" && len(args) > 1 {
		return withCode(2, fmt.Errorf("--source applies to a single candidates file"))
	}
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	// One bad file does not stop the batch.
	var errs []error
	for _, path := range args {
		candidates, err := compiler.LoadCandidatesFile(path)
		if err == nil {
			err = compileAndReport(cmd, e, candidates, firstNonEmpty(compileSource, path), "file", compileMode)
		} else {
			err = withCode(2, err)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  ✗ %s: %v\n", path, err)
			errs = append(errs, err)
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return withCode(exitCode(errs[0]), errors.Join(errs...))
}

// compileAndReport compiles candidates, prints the outcome and records
// compile metrics.
func compileAndReport(cmd *cobra.Command, e *env, candidates []map[string]any, source, generator, modeFlag string) error {
	if modeFlag == "" {
		modeFlag = e.cfg.Compile.Mode
	}
	mode, err := compiler.ParseMode(modeFlag)
	if err != nil {
		return withCode(2, err)
	}
	target := compileTarget
	if target == "" {
		target = e.cfg.Run.Target
	}
	opts := compiler.Options{
		Mode:      mode,
		Source:    source,
		TargetURL: target,
		Generator: generator,
		Store:     e.store,
		Logger:    e.log,
	}
	if compileDryRun {
		opts.Store = nil
	}

	res, err := compiler.Compile(cmd.Context(), candidates, opts)
	out := cmd.OutOrStdout()
	var cf *compiler.CompilationFailure
	switch {
	case errors.As(err, &cf):
		observeCompile(e.metrics, mode, "failed", cf.Report)
		printDrops(cmd.ErrOrStderr(), cf.Report)
		return withCode(2, err)
	case err != nil:
		observeCompile(e.metrics, mode, "error", compiler.Report{})
		return err
	}
	observeCompile(e.metrics, mode, "compiled", res.Report)

	if compileJSON {
		return writeJSON(out, res)
	}
	printDrops(cmd.ErrOrStderr(), res.Report)
	verb := "stored"
	if !res.Stored {
		verb = "compiled (not stored)"
	}
	fmt.Fprintf(out, "✓ %s %s: %d of %d actions\n", res.TestCase.Name, verb, res.Report.Accepted, res.Report.Candidates)
	return nil
}

func printDrops(w io.Writer, r compiler.Report) {
	for _, d := range r.Dropped {
		fmt.Fprintf(w, "  ⚠ candidate %d dropped: %s\n", d.Index, d.Error)
	}
}

func observeCompile(m *metrics.Collector, mode compiler.Mode, status string, r compiler.Report) {
	if m == nil {
		return
	}
	reasons := make([]string, 0, len(r.Dropped))
	for _, d := range r.Dropped {
		reasons = append(reasons, string(d.Error.Reason))
	}
	m.ObserveCompile(string(mode), status, reasons)
}

// --- generate ---

var (
	generateHints   []string
	generateModel   string
	generateCommand string
)

var generateCmd = &cobra.Command{
	Use:   "generate [source-file]",
	Short: "Ask a local model for a scenario and compile it",
	Long: `Read a source artifact, ask an Ollama model for candidate actions and
compile them. When the model output is unusable a smoke scenario that loads
the target and checks the page body is compiled instead.

The model is configured with OLLAMA_HOST and OLLAMA_MODEL (a .env file in
the working directory is read on startup). With --generator-cmd the prompt
is piped to a local command instead, e.g. --generator-cmd "llm -m gpt-4o".`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	var client compiler.Generator
	if generateCommand != "" {
		client, err = compiler.NewCommandGenerator(generateCommand)
	} else {
		client, err = compiler.NewOllamaClient(compiler.OllamaConfig{
			Host:        firstNonEmpty(e.cfg.Compile.OllamaHost, "http://localhost:11434"),
			Model:       firstNonEmpty(generateModel, e.cfg.Compile.OllamaModel),
			Temperature: 0.3,
		})
	}
	if err != nil {
		return fmt.Errorf("generator setup: %w", err)
	}

	target := firstNonEmpty(compileTarget, e.cfg.Run.Target)
	fmt.Fprintf(cmd.ErrOrStderr(), "Generating scenario for %s via %s...\n", filepath.Base(args[0]), client.ModelName())
	gen, err := compiler.Generate(cmd.Context(), client, compiler.GenerateRequest{
		SourcePath: args[0],
		TargetURL:  target,
		Hints:      generateHints,
	}, e.log)
	if err != nil {
		return err
	}
	if gen.Fallback {
		fmt.Fprintf(cmd.ErrOrStderr(), "  ⚠ model output unusable (%v), compiling smoke scenario\n", gen.Err)
	}
	source := firstNonEmpty(compileSource, args[0])
	return compileAndReport(cmd, e, gen.Candidates, source, gen.Model, compileMode)
}

// --- validate ---

var validateCandidates bool

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a stored test case document or a candidate list",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	if validateCandidates {
		return validateCandidateFile(cmd, args[0])
	}
	tc, errs := testcase.ValidateFile(args[0])
	var failures []*testcase.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(cmd.ErrOrStderr(), "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "    at: %s\n", e.Path)
			}
			continue
		}
		failures = append(failures, e)
	}
	if len(failures) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Validation failed: %d error(s)\n\n", len(failures))
		for i, e := range failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "     at: %s\n", e.Path)
			}
		}
		return withCode(2, fmt.Errorf("validation failed with %d error(s)", len(failures)))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d actions)\n", tc.Name, len(tc.Actions))
	return nil
}

func validateCandidateFile(cmd *cobra.Command, path string) error {
	candidates, err := compiler.LoadCandidatesFile(path)
	if err != nil {
		return withCode(2, err)
	}
	out := cmd.OutOrStdout()
	invalid := 0
	for i, c := range candidates {
		a, verr := action.Validate(c)
		if verr != nil {
			invalid++
			fmt.Fprintf(out, "  ✗ %d: %s\n", i, verr)
			continue
		}
		fmt.Fprintf(out, "  ✓ %d: %s\n", i, action.Describe(a))
		for _, w := range action.Lint(a) {
			fmt.Fprintf(out, "    ⚠ %s\n", w)
		}
	}
	fmt.Fprintf(out, "\n  %d candidates, %d valid, %d invalid\n", len(candidates), len(candidates)-invalid, invalid)
	if invalid > 0 {
		return withCode(2, fmt.Errorf("%d invalid candidate(s)", invalid))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func init() {
	for _, c := range []*cobra.Command{compileCmd, generateCmd} {
		c.Flags().StringVar(&compileMode, "mode", "", "Compile mode: strict or lossy (default from config)")
		c.Flags().StringVar(&compileSource, "source", "", "Source artifact reference (default: the input path)")
		c.Flags().StringVar(&compileTarget, "target", "", "Target application URL recorded on the test case")
		c.Flags().BoolVar(&compileDryRun, "dry-run", false, "Compile without storing")
		c.Flags().BoolVar(&compileJSON, "json", false, "Print the compilation result as JSON")
	}
	generateCmd.Flags().StringArrayVar(&generateHints, "hint", nil, "Extra instruction for the model, repeatable")
	generateCmd.Flags().StringVar(&generateModel, "model", "", "Ollama model (overrides OLLAMA_MODEL)")
	generateCmd.Flags().StringVar(&generateCommand, "generator-cmd", "", "Pipe the prompt to this command instead of calling Ollama")

	validateCmd.Flags().BoolVar(&validateCandidates, "candidates", false, "Treat the file as a candidate list instead of a stored test case")
}
