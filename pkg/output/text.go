package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/packscan/packscan/pkg/scanner"
)

// WriteTextReport prints findings in a tabular text format.
func WriteTextReport(w io.Writer, findings []scanner.Finding) error {
	if len(findings) == 0 {
		_, err := fmt.Fprintln(w, "No compromised packages found.")
		return err
	}

	fmt.Fprintf(w, "Found %d compromised package reference(s):\n\n", len(findings))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ECOSYSTEM\tTYPE\tPACKAGE\tVERSION\tMATCH\tSPEC\tFILE")
	fmt.Fprintln(tw, "---------\t----\t-------\t-------\t-----\t----\t----")

	for _, f := range findings {
		spec := f.DeclaredSpec
		if spec == "" {
			spec = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			f.Ecosystem,
			f.Type,
			f.Package,
			f.Version,
			f.MatchType,
			spec,
			f.File,
		)
	}
	return tw.Flush()
}
