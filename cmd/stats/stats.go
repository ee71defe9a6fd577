// Package stats implements the daily statistics command.
package stats

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/platewatch/cmd/internal/cli"
	"github.com/tphakala/platewatch/internal/conf"
)

// Command returns the stats command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		date string
		days int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show daily detection statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			parsed, err := cli.ParseDate(date)
			if err != nil {
				return err
			}
			if parsed != nil {
				day = *parsed
			}

			store, err := cli.OpenStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			days = max(days, 1)
			rows := make([][]string, 0, days)
			for i := range days {
				s, err := store.DailyStatistics(cmd.Context(), day.AddDate(0, 0, -i))
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					s.Date,
					strconv.FormatInt(s.TotalDetections, 10),
					strconv.FormatInt(s.UniquePlates, 10),
					strconv.FormatInt(s.SuspiciousEvents, 10),
					strconv.FormatInt(s.BlacklistHits, 10),
				})
			}
			cli.RenderTable(cmd.OutOrStdout(),
				[]string{"Date", "Detections", "Unique plates", "Suspicious", "Blacklist hits"},
				rows,
				[]cli.Align{cli.AlignLeft, cli.AlignRight, cli.AlignRight, cli.AlignRight, cli.AlignRight})
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Last day to show, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&days, "days", 1, "Number of days to show, counting back from --date")
	return cmd
}
