package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/notify"
	"github.com/roach88/carta/internal/replica"
	"github.com/roach88/carta/internal/store"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	History       int
	Notifications int
	Severity      string
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the shared admin state",
		Long: `Show the admin state held in the shared store: prices, delivery zones,
novels, the cart, recent notifications and the store's write history.

Example:
  carta state
  carta state --history 10 --format json
  carta state --notifications 5 --severity error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.History, "history", 0, "number of admin-state writes to list")
	cmd.Flags().IntVar(&opts.Notifications, "notifications", 10, "number of recent notifications to show")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "only show notifications of this severity")

	return cmd
}

// StateReport is the output of the state command.
type StateReport struct {
	Store           string               `json:"store"`
	Version         int64                `json:"version"`
	Prices          model.PriceConfig    `json:"prices"`
	Zones           []model.DeliveryZone `json:"delivery_zones"`
	Novels          []model.Novel        `json:"novels"`
	Cart            []model.CartLineItem `json:"cart"`
	Notifications   notify.Log           `json:"notifications"`
	LastPriceUpdate *time.Time           `json:"last_price_update,omitempty"`
	LastZoneUpdate  *time.Time           `json:"last_zone_update,omitempty"`
	LastNovelUpdate *time.Time           `json:"last_novel_update,omitempty"`
	LastBackup      *time.Time           `json:"last_backup,omitempty"`
	LastSyncedAt    *time.Time           `json:"last_synced_at,omitempty"`
	History         []store.Write        `json:"history,omitempty"`
}

// RenderText writes the report in sections.
func (r StateReport) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "Store:   %s (version %d)\n", r.Store, r.Version)
	fmt.Fprintf(w, "Synced:  %s\n", formatTime(r.LastSyncedAt))
	fmt.Fprintf(w, "Backup:  %s\n\n", formatTime(r.LastBackup))

	fmt.Fprintf(w, "Prices (updated %s)\n", formatTime(r.LastPriceUpdate))
	fmt.Fprintf(w, "  movie %d, series %d/season, novel %d/chapter, transfer fee %g%%\n\n",
		r.Prices.MoviePrice, r.Prices.SeriesPricePerSeason, r.Prices.NovelPricePerChapter, r.Prices.TransferFeePercent)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Zones (updated %s)\n", formatTime(r.LastZoneUpdate))
	fmt.Fprintln(tw, "  ID\tNAME\tCOST\tACTIVE")
	for _, z := range r.Zones {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%t\n", z.ID, z.Name, z.Cost, z.Active)
	}
	fmt.Fprintf(tw, "\nNovels (updated %s)\n", formatTime(r.LastNovelUpdate))
	fmt.Fprintln(tw, "  ID\tTITLE\tCHAPTERS\tACTIVE")
	for _, n := range r.Novels {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%t\n", n.ID, n.Title, n.Chapters, n.Active)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nCart: %d item(s)\n", len(r.Cart))

	if len(r.Notifications) > 0 {
		fmt.Fprintln(w, "\nNotifications")
		for _, n := range r.Notifications {
			fmt.Fprintf(w, "  %s [%s] %s: %s\n", n.Timestamp.Format(time.RFC3339), n.Severity, n.Title, n.Message)
		}
	}

	if len(r.History) > 0 {
		fmt.Fprintln(w, "\nHistory")
		for _, h := range r.History {
			fmt.Fprintf(w, "  v%d %s by %s (%d bytes)\n", h.Version, h.UpdatedAt.Format(time.RFC3339), h.Source, h.Size)
		}
	}
	return nil
}

func runState(opts *StateOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := formatter(cmd, opts.RootOptions)

	severity := model.Severity(opts.Severity)
	if severity != "" && !severity.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown severity %q", opts.Severity))
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

	admin := e.container.Snapshot().Admin
	notes := admin.Notifications
	if severity != "" {
		notes = notes.Filter(severity)
	}
	if opts.Notifications >= 0 && len(notes) > opts.Notifications {
		notes = notes[:opts.Notifications]
	}

	report := StateReport{
		Store:           cfg.Store.Path,
		Version:         e.replica.LastSeenVersion(),
		Prices:          admin.Prices,
		Zones:           admin.DeliveryZones,
		Novels:          admin.Novels,
		Cart:            e.container.Cart(),
		Notifications:   notes,
		LastPriceUpdate: admin.LastPriceUpdate,
		LastZoneUpdate:  admin.LastZoneUpdate,
		LastNovelUpdate: admin.LastNovelUpdate,
		LastBackup:      admin.LastBackup,
		LastSyncedAt:    admin.Sync.LastSyncedAt,
	}

	if opts.History > 0 {
		report.History, err = e.store.History(ctx, replica.KeyAdminState, opts.History)
		if err != nil {
			_ = out.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read history", err)
		}
	}

	return out.Success(report)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
