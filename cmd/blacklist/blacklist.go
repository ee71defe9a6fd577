// Package blacklist implements the blacklist management commands.
package blacklist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/platewatch/cmd/internal/cli"
	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/datastore"
	"github.com/tphakala/platewatch/internal/plate"
)

// Command returns the blacklist command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage blacklisted plates",
	}
	cmd.AddCommand(
		addCommand(settings),
		removeCommand(settings),
		listCommand(settings),
		importCommand(settings),
	)
	return cmd
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var entry datastore.BlacklistEntry

	cmd := &cobra.Command{
		Use:   "add PLATE",
		Short: "Add or update a blacklist entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.OpenStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entry.Text = args[0]
			if err := store.AddBlacklistEntry(cmd.Context(), entry); err != nil {
				return fmt.Errorf("failed to add %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Blacklisted %s\n", plate.Normalize(args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&entry.Reason, "reason", "", "Why the plate is blacklisted")
	cmd.Flags().StringVar(&entry.DangerLevel, "danger", datastore.DangerMedium, "Danger level: LOW|MEDIUM|HIGH|CRITICAL")
	cmd.Flags().StringVar(&entry.Notes, "notes", "", "Free-form notes")
	return cmd
}

func removeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "remove PLATE",
		Short: "Remove a blacklist entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.OpenStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.RemoveBlacklistEntry(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to remove %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from the blacklist\n", plate.Normalize(args[0]))
			return nil
		},
	}
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List blacklisted plates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.OpenStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.Blacklist(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "The blacklist is empty")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for i := range entries {
				e := &entries[i]
				rows = append(rows, []string{e.Text, e.DangerLevel, e.Reason, cli.FormatTime(e.DateAdded), e.Notes})
			}
			cli.RenderTable(cmd.OutOrStdout(),
				[]string{"Plate", "Danger", "Reason", "Added", "Notes"}, rows, nil)
			return nil
		},
	}
}

func importCommand(settings *conf.Settings) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import blacklist entries from a CSV or YAML file",
		Long: `Import blacklist entries. CSV rows are text, reason, danger_level, notes
with an optional header; YAML is a list of entries with the same keys.
The format is taken from the file extension unless --format is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if format == "" {
				format = formatFromPath(path)
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			store, err := cli.OpenStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.ImportBlacklist(cmd.Context(), f, format)
			if err != nil {
				return fmt.Errorf("failed to import %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Input format: csv|yaml")
	return cmd
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return datastore.FormatYAML
	default:
		return datastore.FormatCSV
	}
}
