// Package export implements the CSV export command.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/platewatch/cmd/internal/cli"
	"github.com/tphakala/platewatch/internal/conf"
)

// Command returns the export command.
func Command(settings *conf.Settings) *cobra.Command {
	var from, to, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export plate identities as CSV",
		Long: `Export plate identities as CSV, newest first. --from keeps plates first
seen on or after that day, --to keeps plates last seen on or before the end of
that day.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := cli.ParseDate(from)
			if err != nil {
				return err
			}
			toDate, err := cli.ParseDate(to)
			if err != nil {
				return err
			}
			if toDate != nil {
				end := toDate.AddDate(0, 0, 1).Add(-1)
				toDate = &end
			}

			store, err := cli.OpenStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			n, err := store.ExportCSV(cmd.Context(), w, fromDate, toDate)
			if err != nil {
				return err
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d plates to %s\n", n, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last day, YYYY-MM-DD")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file (default stdout)")
	return cmd
}
