package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/packscan/packscan/pkg/threat"
)

// validateCmd checks a threat CSV before it is distributed to responders.
var validateCmd = &cobra.Command{
	Use:   "validate <threats.csv>",
	Short: "Validate a threat CSV",
	Long: `Validate checks a threat CSV for structural problems: missing headers,
empty fields, malformed Maven coordinates, suspicious version strings,
unknown ecosystems, and duplicate rows.

Exits 0 when the file is usable (warnings allowed), 1 when it is not.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := threat.ValidateCSV(args[0])
		if err != nil {
			return fmt.Errorf("validating %s: %w", args[0], err)
		}

		for _, issue := range result.Errors {
			fmt.Printf("error: line %d: %s\n", issue.Line, issue.Message)
		}
		for _, issue := range result.Warnings {
			fmt.Printf("warning: line %d: %s\n", issue.Line, issue.Message)
		}

		fmt.Printf("%s: %d row(s), %d error(s), %d warning(s)\n",
			args[0], result.Rows, len(result.Errors), len(result.Warnings))

		if !result.Valid() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
