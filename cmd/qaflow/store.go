package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/qaflow/pkg/action"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
)

var (
	listJSON bool
	showJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored test cases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		names, err := e.store.List(cmd.Context())
		if err != nil {
			return err
		}
		if listJSON {
			if names == nil {
				names = []string{}
			}
			return writeJSON(cmd.OutOrStdout(), names)
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a stored test case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		tc, err := e.store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if showJSON {
			return writeJSON(cmd.OutOrStdout(), tc)
		}
		printTestCase(cmd, tc)
		return nil
	},
}

func printTestCase(cmd *cobra.Command, tc *testcase.TestCase) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", tc.Name)
	fmt.Fprintf(out, "  source:      %s\n", tc.Source)
	if tc.TargetURL != "" {
		fmt.Fprintf(out, "  target:      %s\n", tc.TargetURL)
	}
	if tc.Generator != "" {
		fmt.Fprintf(out, "  generator:   %s\n", tc.Generator)
	}
	fmt.Fprintf(out, "  fingerprint: %s\n", tc.Fingerprint)
	fmt.Fprintf(out, "  created:     %s\n\n", tc.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	for i, a := range tc.Actions {
		fmt.Fprintf(out, "  %2d. %s\n", i+1, action.Describe(a))
	}
}

var deleteCmd = &cobra.Command{
	Use:   "delete [name...]",
	Short: "Remove stored test cases",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		for _, name := range args {
			if err := e.store.Delete(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ deleted %s\n", name)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output the stored document")
}
