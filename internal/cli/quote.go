package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/pricing"
	"github.com/roach88/carta/internal/state"
)

// QuoteOptions holds flags for the quote command.
type QuoteOptions struct {
	*RootOptions
	Items  []string
	Novels []string
	File   string
	Cart   bool
	Zone   string
}

// NewQuoteCommand creates the quote command.
func NewQuoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QuoteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price items against the shared price list",
		Long: `Price cart items with the prices currently held in the shared store.

Items are given as KIND[/SEASONS][@METHOD], where SEASONS is a list such as
1,2,5-7 and METHOD is cash (default) or transfer. Items read from --file use
the cart line item YAML layout. --cart prices the persisted cart instead.

Example:
  carta quote --item movie --item series/1-3@transfer
  carta quote --novel nov-123@transfer --zone zone-centro
  carta quote --cart --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Items, "item", "i", nil, "item to price: KIND[/SEASONS][@METHOD] (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Novels, "novel", nil, "novel to price: ID[@METHOD] (repeatable)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML file with a list of cart line items")
	cmd.Flags().BoolVar(&opts.Cart, "cart", false, "price the persisted cart")
	cmd.Flags().StringVar(&opts.Zone, "zone", "", "delivery zone ID to add to the total")

	return cmd
}

// NovelLine is the priced view of one novel.
type NovelLine struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Chapters      int                 `json:"chapters"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	Price         int64               `json:"price"`
}

// QuoteResult is the output of the quote command.
type QuoteResult struct {
	pricing.Breakdown
	Novels   []NovelLine         `json:"novels,omitempty"`
	Zone     *model.DeliveryZone `json:"zone,omitempty"`
	Delivery int64               `json:"delivery"`
	Total    int64               `json:"total"`
}

// RenderText writes the quote as a table.
func (r QuoteResult) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tKIND\tSEASONS\tPAYMENT\tBASE\tPRICE")
	for _, l := range r.Lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
			l.Item.ID, l.Item.Kind, formatSeasons(l.Item.SelectedSeasons), l.Item.PaymentMethod, l.BasePrice, l.Price)
	}
	for _, n := range r.Novels {
		fmt.Fprintf(tw, "%s\tnovel\t%d ch\t%s\t-\t%d\n", n.Title, n.Chapters, n.PaymentMethod, n.Price)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nCash:      %d\n", r.Totals.Cash)
	fmt.Fprintf(w, "Transfer:  %d (surcharge %d)\n", r.Totals.Transfer, r.Surcharge)
	if r.Zone != nil {
		fmt.Fprintf(w, "Delivery:  %d (%s)\n", r.Delivery, r.Zone.Name)
	}
	_, err := fmt.Fprintf(w, "Total:     %d\n", r.Total)
	return err
}

func runQuote(opts *QuoteOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := formatter(cmd, opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	e, err := openEnv(ctx, cmd, opts.RootOptions, cfg, "cli", envSetup{})
	if err != nil {
		return err
	}
	defer e.Close()

	items, err := quoteItems(opts, e.container)
	if err != nil {
		_ = out.Error(ErrCodeInput, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid items", err)
	}

	snap := e.container.Snapshot()
	prices := snap.Admin.Prices
	result := QuoteResult{Breakdown: pricing.Quote(&prices, items)}
	novelTotal := int64(0)

	for _, spec := range opts.Novels {
		id, method, err := splitMethod(spec)
		if err != nil {
			return WrapExitError(ExitFailure, "invalid novel", err)
		}
		n, ok := snap.Admin.LookupNovel(id)
		if !ok {
			_ = out.Error(ErrCodeRejected, fmt.Sprintf("novel %q not found", id), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("novel %q not found", id))
		}
		price := pricing.NovelCost(n, &prices, method)
		novelTotal += price
		result.Novels = append(result.Novels, NovelLine{
			ID:            n.ID,
			Title:         n.Title,
			Chapters:      n.Chapters,
			PaymentMethod: method,
			Price:         price,
		})
	}

	if opts.Zone != "" {
		z, ok := snap.Admin.LookupZone(opts.Zone)
		if !ok {
			_ = out.Error(ErrCodeRejected, fmt.Sprintf("delivery zone %q is not available", opts.Zone), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("delivery zone %q is not available", opts.Zone))
		}
		result.Zone = &z
		result.Delivery = z.Cost
	}

	result.Total = pricing.OrderTotal(result.Subtotal+novelTotal, result.Delivery)
	return out.Success(result)
}

// quoteItems collects the items to price. Flag and file items are normalized
// through a scratch container so that they follow cart rules.
func quoteItems(opts *QuoteOptions, c *state.Container) ([]model.CartLineItem, error) {
	if opts.Cart {
		if len(opts.Items) > 0 || opts.File != "" {
			return nil, fmt.Errorf("--cart cannot be combined with --item or --file")
		}
		return c.Cart(), nil
	}

	var raw []model.CartLineItem
	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("read items: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", opts.File, err)
		}
	}
	var next int64
	for _, item := range raw {
		next = max(next, item.ID)
	}
	for _, spec := range opts.Items {
		next++
		item, err := parseItem(next, spec)
		if err != nil {
			return nil, err
		}
		raw = append(raw, item)
	}

	scratch := state.New()
	for _, item := range raw {
		if _, err := scratch.Apply(state.AddItem{Item: item}); err != nil {
			return nil, fmt.Errorf("item %d: %w", item.ID, err)
		}
	}
	return scratch.Cart(), nil
}

// parseItem reads KIND[/SEASONS][@METHOD].
func parseItem(id int64, spec string) (model.CartLineItem, error) {
	rest, method, err := splitMethod(spec)
	if err != nil {
		return model.CartLineItem{}, err
	}
	kindPart, seasonPart, hasSeasons := strings.Cut(rest, "/")

	item := model.CartLineItem{
		ID:            id,
		Kind:          model.MediaKind(kindPart),
		PaymentMethod: method,
	}
	if !item.Kind.Valid() {
		return model.CartLineItem{}, fmt.Errorf("item %q: unknown kind %q", spec, kindPart)
	}
	switch {
	case hasSeasons && item.Kind != model.KindSeries:
		return model.CartLineItem{}, fmt.Errorf("item %q: only series take seasons", spec)
	case hasSeasons:
		seasons, err := parseSeasons(seasonPart)
		if err != nil {
			return model.CartLineItem{}, fmt.Errorf("item %q: %w", spec, err)
		}
		item.SelectedSeasons = seasons
	case item.Kind == model.KindSeries:
		item.SelectedSeasons = []int{1}
	}
	return item, nil
}

// splitMethod splits VALUE[@METHOD]. The method defaults to cash.
func splitMethod(spec string) (string, model.PaymentMethod, error) {
	value, m, ok := strings.Cut(spec, "@")
	if !ok {
		return value, model.PayCash, nil
	}
	method := model.PaymentMethod(m)
	if !method.Valid() {
		return "", "", fmt.Errorf("%q: unknown payment method %q", spec, m)
	}
	return value, method, nil
}

// parseSeasons reads a list such as 1,2,5-7.
func parseSeasons(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("bad season %q", part)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || to < from {
				return nil, fmt.Errorf("bad season range %q", part)
			}
		}
		for n := from; n <= to; n++ {
			out = append(out, n)
		}
	}
	return out, nil
}

func formatSeasons(seasons []int) string {
	if len(seasons) == 0 {
		return "-"
	}
	parts := make([]string, len(seasons))
	for i, n := range seasons {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
