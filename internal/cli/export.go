package cli

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/carta/internal/backup"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string

	// Now overrides the export timestamp (for testing).
	Now func() time.Time
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup of the admin configuration",
		Long: `Write a JSON backup of prices, delivery zones and novels.

The backup goes to stdout unless --output names a file. The export is
recorded in the shared notification log and shows up on every instance.

Example:
  carta export > backup.json
  carta export --output carta-backup.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "backup file (default stdout)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	e, err := openEnv(ctx, cmd, opts.RootOptions, cfg, "cli", envSetup{})
	if err != nil {
		return err
	}
	defer e.Close()

	var buf bytes.Buffer
	doc, err := backup.Export(e.container, &buf, now().UTC())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build backup", err)
	}

	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write backup", err)
	}

	out := formatter(cmd, opts.RootOptions)
	return out.Success(fmt.Sprintf("Backup written to %s (%d zones, %d novels)",
		opts.Output, len(doc.AdminConfig.DeliveryZones), len(doc.AdminConfig.Novels)))
}
