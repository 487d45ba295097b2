package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stockbook/internal/backup"
	"github.com/roach88/stockbook/internal/export"
)

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store or bring its schema up to date",
		Long: `Create the store file if it does not exist and apply any pending schema
migrations. Every other command does this on open; init only makes it explicit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.app.Init(cmd.Context())
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(report, func(w io.Writer) {
				switch {
				case report.Fresh:
					fmt.Fprintf(w, "✓ Created store at schema version %d\n", report.To)
				case len(report.Applied) > 0:
					fmt.Fprintf(w, "✓ Migrated store from version %d to %d\n", report.From, report.To)
					for _, name := range report.Applied {
						fmt.Fprintf(w, "  - %s\n", name)
					}
				default:
					fmt.Fprintf(w, "✓ Store is up to date (version %d)\n", report.To)
				}
			})
		},
	}
}

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect schema migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the schema version and applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.app.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(status, func(w io.Writer) {
				fmt.Fprintf(w, "Store:   %s\n", status.Path)
				fmt.Fprintf(w, "Version: %d (latest %d)\n", status.Version, status.Latest)
				if len(status.Pending) > 0 {
					fmt.Fprintf(w, "Pending: %s\n", strings.Join(status.Pending, ", "))
				}
				if len(status.History) > 0 {
					fmt.Fprintln(w)
					fmt.Fprintln(w, "=== History ===")
					for _, h := range status.History {
						fmt.Fprintf(w, "  %3d  %-28s %s\n", h.Version, h.Name, h.AppliedAt)
					}
				}
			})
		},
	})
	return cmd
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest>",
		Short: "Write a complete copy of the store",
		Long: `Checkpoint the write-ahead log and copy the store to dest. Writers are
held off for the duration. An existing dest is overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.app.Backups().Backup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f := opts.formatter(cmd)
			if res.Checkpoint == backup.CheckpointDegraded {
				f.VerboseLog("checkpoint failed: %v", res.CheckpointErr)
			}
			return f.Render(res, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Backup written to %s (%d bytes)\n", res.Path, res.Bytes)
				if res.Checkpoint == backup.CheckpointDegraded {
					fmt.Fprintln(w, "  warning: checkpoint failed; copy taken with VACUUM INTO")
				}
			})
		},
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <src>",
		Short: "Replace the store with a backup",
		Long: `Validate src as a stockbook backup, save a safety copy of the current
store next to it, and replace the store with src. Nothing is restored
automatically: if the replaced store cannot be opened, the command fails with
REINIT_FAILED and the safety copy is kept at the path reported under
safety_backup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.app.Backups().Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(res, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Imported %s\n", args[0])
				if res.SafetyBackup != "" {
					fmt.Fprintf(w, "  previous store saved as %s\n", res.SafetyBackup)
				}
				if len(res.Migration.Applied) > 0 {
					fmt.Fprintf(w, "  migrated from version %d to %d\n", res.Migration.From, res.Migration.To)
				}
			})
		},
	}
}

// NewExportCommand creates the export command group.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export store contents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "csv <dest>",
		Short: "Export categories, products, sales and line items as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := export.ToFile(cmd.Context(), opts.app.Store, args[0])
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(counts, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Exported to %s: %d categories, %d products, %d sales, %d line items\n",
					args[0], counts.Categories, counts.Products, counts.Sales, counts.SoldLineItems)
			})
		},
	})
	return cmd
}
