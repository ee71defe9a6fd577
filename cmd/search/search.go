// Package search implements the plate search command.
package search

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tphakala/platewatch/cmd/internal/cli"
	"github.com/tphakala/platewatch/internal/conf"
)

// Command returns the search command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		limit    int
		variants bool
	)

	cmd := &cobra.Command{
		Use:   "search TERM",
		Short: "Find plates whose text or any variant contains TERM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.OpenStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			results, err := store.SearchIdentities(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "No plates match %q\n", args[0])
				return nil
			}

			rows := make([][]string, 0, len(results))
			for i := range results {
				r := &results[i]
				flags := ""
				if r.IsBlacklisted {
					flags += "B"
				}
				if r.IsSuspicious {
					flags += "S"
				}
				rows = append(rows, []string{
					r.CanonicalText,
					r.BestVariant,
					cli.FormatConfidence(r.BestConfidence),
					strconv.FormatInt(r.DetectionCount, 10),
					cli.FormatTime(r.FirstSeen),
					cli.FormatTime(r.LastSeen),
					flags,
				})
			}
			cli.RenderTable(out,
				[]string{"Plate", "Best variant", "Confidence", "Detections", "First seen", "Last seen", "Flags"},
				rows,
				[]cli.Align{cli.AlignLeft, cli.AlignLeft, cli.AlignRight, cli.AlignRight})

			if !variants {
				return nil
			}
			for i := range results {
				vs, err := store.Variants(cmd.Context(), results[i].CanonicalText)
				if err != nil {
					return err
				}
				vrows := make([][]string, 0, len(vs))
				for j := range vs {
					v := &vs[j]
					vrows = append(vrows, []string{
						v.VariantText,
						cli.FormatConfidence(v.MaxConfidence),
						strconv.FormatInt(v.OccurrenceCount, 10),
						cli.FormatTime(v.LastSeen),
					})
				}
				fmt.Fprintf(out, "\nVariants of %s\n", results[i].CanonicalText)
				cli.RenderTable(out, []string{"Variant", "Max confidence", "Seen", "Last seen"}, vrows,
					[]cli.Align{cli.AlignLeft, cli.AlignRight, cli.AlignRight})
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of plates")
	cmd.Flags().BoolVar(&variants, "variants", false, "Also list the variants of every match")
	return cmd
}
