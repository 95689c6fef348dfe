package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/qaflow/pkg/action"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig   string
	flagLogLevel string
	flagStore    string
	flagStoreDir string
	flagBrowser  string
	flagFixture  string
)

func main() {
	// A missing .env is fine; values may come from the real environment.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "qaflow",
	Short: "Compile generated test scenarios into browser actions and run them",
	Long: `qaflow turns candidate browser actions into validated, stored test cases
and executes them in isolated browser sessions.

Exit codes:
  0  everything passed
  1  a test failed or the --fail-when gate tripped
  2  validation or compilation failed`,
	SilenceUsage: true,
}

// --- schema export ---

var schemaType string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	switch schemaType {
	case "actions":
		data, err = action.GenerateJSONSchema()
	case "testcase":
		data, err = testcase.GenerateJSONSchema()
	default:
		return fmt.Errorf("unknown schema type %q, use 'actions' or 'testcase'", schemaType)
	}
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	var out json.RawMessage = data
	formatted, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "qaflow %s (build: %s)\n", version, commit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Path to qaflow.yaml (default: ./qaflow.yaml when present)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagStore, "store", "", "Test case store backend: file, memory, redis")
	pf.StringVar(&flagStoreDir, "store-dir", "", "Directory of the file store")
	pf.StringVar(&flagBrowser, "browser", "", "Browser driver: chrome or memory")
	pf.StringVar(&flagFixture, "fixture", "", "Page fixture for the memory browser")

	schemaExportCmd.Flags().StringVar(&schemaType, "type", "actions", "Schema to export: actions or testcase")
	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
