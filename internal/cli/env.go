package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/carta/internal/config"
	"github.com/roach88/carta/internal/replica"
	"github.com/roach88/carta/internal/state"
	"github.com/roach88/carta/internal/store"
)

// env is one opened instance: configuration, the shared store and a
// hydrated container with its sync service attached.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	container *state.Container
	replica   *replica.Service
}

// loadConfig reads the configuration named by the global flags.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var loadOpts []config.Option
	if opts.DotEnv != "" {
		loadOpts = append(loadOpts, config.WithDotEnv(opts.DotEnv))
	}
	if opts.LookupEnv != nil {
		loadOpts = append(loadOpts, config.WithLookupEnv(opts.LookupEnv))
	}
	cfg, err := config.Load(opts.Config, loadOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the text logger used by every command. Debug output is
// enabled by --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// instanceID returns the configured instance name. Without one it builds
// role@host-<suffix>, where the suffix is drawn fresh for every call so that
// processes sharing a host and a store never share an ID.
func instanceID(cfg *config.Config, role string) string {
	if cfg.Instance != "" {
		return cfg.Instance
	}
	id := state.UUIDv7Generator{}.Generate()
	if host, err := os.Hostname(); err == nil && host != "" {
		// The tail of a v7 UUID is random; the head is the timestamp.
		return role + "@" + host + "-" + id[len(id)-12:]
	}
	return role + "-" + id
}

// envSetup carries extra options for the container and sync service.
type envSetup struct {
	state   []state.Option
	replica []replica.Option
}

// openEnv opens the store and hydrates a container from it. An empty store
// is seeded from cfg.
func openEnv(ctx context.Context, cmd *cobra.Command, opts *RootOptions, cfg *config.Config, role string, setup envSetup) (*env, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	logger.Debug("opening store", "path", cfg.Store.Path)
	st, err := store.Open(cfg.Store.Path, store.WithWatchInterval(cfg.Store.WatchInterval))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	id := instanceID(cfg, role)
	stateOpts := append([]state.Option{
		state.WithSeed(cfg.StateSeed()),
		state.WithLogger(logger),
	}, setup.state...)
	c := state.New(stateOpts...)
	replicaOpts := append([]replica.Option{
		replica.WithPollInterval(cfg.Sync.PollInterval),
		replica.WithLogger(logger),
	}, setup.replica...)
	svc := replica.New(c, st, id, replicaOpts...)

	if err := svc.Hydrate(ctx); err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load shared state", err)
	}

	return &env{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		container: c,
		replica:   svc,
	}, nil
}

// Close releases the store.
func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing store", "error", err)
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
