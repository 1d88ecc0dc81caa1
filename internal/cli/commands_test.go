package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/carta/internal/config"
	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/order"
)

// testOptions returns root options pointing at a fresh store. CARTA_*
// variables come from vars only, never from the process environment.
func testOptions(t *testing.T, format string, vars map[string]string) *RootOptions {
	t.Helper()
	env := map[string]string{
		"CARTA_DB_PATH":  filepath.Join(t.TempDir(), "carta.db"),
		"CARTA_INSTANCE": "test-instance",
	}
	maps.Copy(env, vars)
	return &RootOptions{
		Format: format,
		LookupEnv: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
	}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	resp := struct {
		Status string `json:"status"`
		Data   any    `json:"data"`
	}{Data: v}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
}

func TestQuote_Items(t *testing.T) {
	opts := testOptions(t, "json", nil)

	out, err := execute(t, NewQuoteCommand(opts),
		"--item", "movie",
		"--item", "movie@transfer",
		"--item", "series/1-3",
		"--zone", "zone-centro",
	)
	require.NoError(t, err)

	var res QuoteResult
	decodeData(t, out, &res)
	require.Len(t, res.Lines, 3)
	assert.Equal(t, int64(80), res.Lines[0].Price)
	assert.Equal(t, int64(88), res.Lines[1].Price)
	assert.Equal(t, int64(8), res.Lines[1].Surcharge)
	assert.Equal(t, int64(900), res.Lines[2].Price)
	assert.Equal(t, []int{1, 2, 3}, res.Lines[2].Item.SelectedSeasons)

	assert.Equal(t, int64(980), res.Totals.Cash)
	assert.Equal(t, int64(88), res.Totals.Transfer)
	assert.Equal(t, int64(1068), res.Subtotal)
	assert.Equal(t, int64(100), res.Delivery)
	assert.Equal(t, int64(1168), res.Total)
}

func TestQuote_TextOutput(t *testing.T) {
	opts := testOptions(t, "text", nil)

	out, err := execute(t, NewQuoteCommand(opts), "--item", "series/2@transfer")
	require.NoError(t, err)
	assert.Contains(t, out, "ITEM")
	assert.Contains(t, out, "Transfer:  330 (surcharge 30)")
	assert.Contains(t, out, "Total:     330")
	assert.NotContains(t, out, "Delivery:")
}

func TestQuote_File(t *testing.T) {
	opts := testOptions(t, "json", nil)
	path := filepath.Join(t.TempDir(), "items.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: 7
  kind: series
  selected_seasons: [3, 1, 3]
- id: 9
  kind: movie
  payment_method: transfer
`), 0o644))

	out, err := execute(t, NewQuoteCommand(opts), "--file", path, "--item", "movie")
	require.NoError(t, err)

	var res QuoteResult
	decodeData(t, out, &res)
	require.Len(t, res.Lines, 3)
	assert.Equal(t, []int{1, 3}, res.Lines[0].Item.SelectedSeasons)
	assert.Equal(t, int64(10), res.Lines[2].Item.ID, "flag items are numbered after file items")
	assert.Equal(t, int64(600+88+80), res.Subtotal)
}

func TestQuote_Rejections(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown kind", []string{"--item", "book"}},
		{"unknown method", []string{"--item", "movie@card"}},
		{"seasons on movie", []string{"--item", "movie/1"}},
		{"bad season range", []string{"--item", "series/3-1"}},
		{"zero season", []string{"--item", "series/0"}},
		{"unknown zone", []string{"--item", "movie", "--zone", "zone-nowhere"}},
		{"unknown novel", []string{"--novel", "nov-missing"}},
		{"cart with items", []string{"--cart", "--item", "movie"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t, "text", nil)
			_, err := execute(t, NewQuoteCommand(opts), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
		})
	}
}

func TestQuote_EmptyCart(t *testing.T) {
	opts := testOptions(t, "json", nil)

	out, err := execute(t, NewQuoteCommand(opts), "--cart")
	require.NoError(t, err)

	var res QuoteResult
	decodeData(t, out, &res)
	assert.Empty(t, res.Lines)
	assert.Zero(t, res.Total)
}

func TestParseSeasons(t *testing.T) {
	got, err := parseSeasons("1,3-5, 8")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4, 5, 8}, got)

	_, err = parseSeasons("a")
	assert.Error(t, err)
	_, err = parseSeasons("4-2")
	assert.Error(t, err)
}

func TestAdmin_ZoneLifecycle(t *testing.T) {
	opts := testOptions(t, "json", nil)

	out, err := execute(t, NewAdminCommand(opts), "zone", "add", "--name", "Playa", "--cost", "150")
	require.NoError(t, err)
	var added ChangeResult
	decodeData(t, out, &added)
	assert.True(t, added.Changed)
	require.NotNil(t, added.Notification)
	assert.Equal(t, "Zone added", added.Notification.Title)

	_, err = execute(t, NewAdminCommand(opts), "zone", "add", "--name", "Playa", "--cost", "90")
	require.Error(t, err, "active zone names are unique")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err = execute(t, NewStateCommand(opts))
	require.NoError(t, err)
	var report StateReport
	decodeData(t, out, &report)
	require.Len(t, report.Zones, 3)
	playa := report.Zones[2]
	assert.Equal(t, "Playa", playa.Name)
	assert.Equal(t, int64(150), playa.Cost)

	_, err = execute(t, NewAdminCommand(opts), "zone", "update", playa.ID, "--cost", "175")
	require.NoError(t, err)

	out, err = execute(t, NewQuoteCommand(opts), "--item", "movie", "--zone", playa.ID)
	require.NoError(t, err)
	var q QuoteResult
	decodeData(t, out, &q)
	assert.Equal(t, int64(175), q.Delivery)

	_, err = execute(t, NewAdminCommand(opts), "zone", "delete", playa.ID)
	require.NoError(t, err, "a successful delete is not a failure")

	_, err = execute(t, NewQuoteCommand(opts), "--item", "movie", "--zone", playa.ID)
	require.Error(t, err, "deleted zone no longer resolves")

	_, err = execute(t, NewAdminCommand(opts), "zone", "delete", playa.ID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestAdmin_InvalidZoneRejected(t *testing.T) {
	opts := testOptions(t, "text", nil)

	_, err := execute(t, NewAdminCommand(opts), "zone", "add", "--name", "Playa", "--cost", "-5")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "change rejected")
}

func TestAdmin_PricesKeepUnsetFields(t *testing.T) {
	opts := testOptions(t, "text", nil)

	out, err := execute(t, NewAdminCommand(opts), "prices", "--movie", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "Prices updated")
	assert.Contains(t, out, "movie_price: 80 -> 90")

	opts.Format = "json"
	out, err = execute(t, NewStateCommand(opts))
	require.NoError(t, err)
	var report StateReport
	decodeData(t, out, &report)
	assert.Equal(t, model.PriceConfig{
		MoviePrice:           90,
		SeriesPricePerSeason: 300,
		NovelPricePerChapter: 5,
		TransferFeePercent:   10,
	}, report.Prices)
	assert.NotNil(t, report.LastPriceUpdate)
}

func TestAdmin_NovelAndQuote(t *testing.T) {
	opts := testOptions(t, "json", nil)

	_, err := execute(t, NewAdminCommand(opts), "novel", "add",
		"--title", "Corazón Salvaje", "--genre", "Drama", "--chapters", "20", "--year", "2009")
	require.NoError(t, err)

	out, err := execute(t, NewStateCommand(opts))
	require.NoError(t, err)
	var report StateReport
	decodeData(t, out, &report)
	require.Len(t, report.Novels, 1)
	id := report.Novels[0].ID

	out, err = execute(t, NewQuoteCommand(opts), "--novel", id+"@transfer")
	require.NoError(t, err)
	var q QuoteResult
	decodeData(t, out, &q)
	require.Len(t, q.Novels, 1)
	assert.Equal(t, int64(110), q.Novels[0].Price)
	assert.Equal(t, int64(110), q.Total)

	_, err = execute(t, NewAdminCommand(opts), "novel", "delete", id)
	require.NoError(t, err)
}

func TestAdmin_Notifications(t *testing.T) {
	opts := testOptions(t, "text", nil)

	_, err := execute(t, NewAdminCommand(opts), "prices", "--transfer-fee", "12")
	require.NoError(t, err)

	out, err := execute(t, NewAdminCommand(opts), "notifications")
	require.NoError(t, err)
	assert.Contains(t, out, "Prices updated")

	out, err = execute(t, NewAdminCommand(opts), "notifications", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Notifications cleared")

	out, err = execute(t, NewAdminCommand(opts), "notifications")
	require.NoError(t, err)
	assert.NotContains(t, out, "Prices updated")
	assert.Contains(t, out, "Notifications cleared")
}

func TestState_History(t *testing.T) {
	opts := testOptions(t, "json", nil)

	_, err := execute(t, NewAdminCommand(opts), "prices", "--series", "250")
	require.NoError(t, err)

	out, err := execute(t, NewStateCommand(opts), "--history", "5", "--severity", "success")
	require.NoError(t, err)
	var report StateReport
	decodeData(t, out, &report)
	require.GreaterOrEqual(t, len(report.History), 2, "seed write plus the price change")
	assert.Equal(t, report.Version, report.History[0].Version)
	assert.Equal(t, "test-instance", report.History[0].Source)
	for _, n := range report.Notifications {
		assert.Equal(t, model.SeveritySuccess, n.Severity)
	}
}

func TestState_UnknownSeverity(t *testing.T) {
	opts := testOptions(t, "text", nil)

	_, err := execute(t, NewStateCommand(opts), "--severity", "fatal")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExport_File(t *testing.T) {
	opts := testOptions(t, "text", nil)
	path := filepath.Join(t.TempDir(), "backup.json")

	cmd := NewExportCommand(opts)
	out, err := execute(t, cmd, "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Backup written to "+path+" (2 zones, 0 novels)")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "TV a la Carta", doc["app_name"])

	opts.Format = "json"
	out, err = execute(t, NewStateCommand(opts))
	require.NoError(t, err)
	var report StateReport
	decodeData(t, out, &report)
	latest, ok := report.Notifications.Latest()
	require.True(t, ok)
	assert.Equal(t, "Backup exported", latest.Title, "the export is logged in shared state")
}

func TestExport_Stdout(t *testing.T) {
	opts := testOptions(t, "text", nil)

	cmd := NewExportCommand(opts)
	out, err := execute(t, cmd)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"delivery_zones"`)
}

func TestHashPassword(t *testing.T) {
	opts := &RootOptions{Format: "text"}

	out, err := execute(t, NewHashPasswordCommand(opts), "--cost", "4", "s3cret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestHashPassword_Stdin(t *testing.T) {
	opts := &RootOptions{Format: "json"}

	cmd := NewHashPasswordCommand(opts)
	cmd.SetIn(strings.NewReader("from-stdin\n"))
	out, err := execute(t, cmd, "--cost", "4")
	require.NoError(t, err)

	var data map[string]string
	decodeData(t, out, &data)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(data["hash"]), []byte("from-stdin")))
}

func TestHashPassword_Errors(t *testing.T) {
	opts := &RootOptions{Format: "text"}

	cmd := NewHashPasswordCommand(opts)
	cmd.SetIn(strings.NewReader(""))
	_, err := execute(t, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, NewHashPasswordCommand(opts), "--cost", "99", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cost")
}

func TestConfigErrorExitCode(t *testing.T) {
	opts := testOptions(t, "text", map[string]string{"CARTA_POLL_INTERVAL": "soon"})

	_, err := execute(t, NewStateCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestServe_StartsAndStops(t *testing.T) {
	opts := testOptions(t, "text", map[string]string{
		"CARTA_HTTP_ADDR":    "127.0.0.1:0",
		"CARTA_TOKEN_SECRET": "test-secret",
	})

	sink := &order.MemorySink{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var status int
	var body string
	serveOpts := &ServeOptions{RootOptions: opts, Sink: sink}
	serveOpts.Ready = func(addr string) {
		defer cancel()
		resp, err := http.Get("http://" + addr + "/api/zones")
		if err != nil {
			t.Errorf("get zones: %v", err)
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		status, body = resp.StatusCode, string(b)
	}

	cmd := newServeCommand(serveOpts)
	cmd.SetContext(ctx)
	out, err := execute(t, cmd)
	require.NoError(t, err)
	assert.Contains(t, out, "carta listening on 127.0.0.1:")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "zone-centro")
	assert.Empty(t, sink.Orders())
}

func TestInstanceID(t *testing.T) {
	opts := testOptions(t, "text", nil)
	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "test-instance", instanceID(cfg, "cli"))

	cfg.Instance = ""
	assert.NotEmpty(t, instanceID(cfg, "cli"))
	assert.True(t, strings.HasPrefix(instanceID(cfg, "cli"), "cli"))
}

func TestInstanceID_DefaultsAreDistinct(t *testing.T) {
	cfg := &config.Config{}

	first := instanceID(cfg, "serve")
	second := instanceID(cfg, "serve")

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "serve"))
	if host, err := os.Hostname(); err == nil && host != "" {
		assert.True(t, strings.HasPrefix(first, "serve@"+host+"-"), first)
	}
}
