package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/carta/internal/api"
	"github.com/roach88/carta/internal/auth"
	"github.com/roach88/carta/internal/bus"
	"github.com/roach88/carta/internal/catalog"
	"github.com/roach88/carta/internal/config"
	"github.com/roach88/carta/internal/order"
	"github.com/roach88/carta/internal/replica"
	"github.com/roach88/carta/internal/state"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// Sink overrides order submission (for testing).
	// If nil, the AMQP sink is used when configured, otherwise orders are logged.
	Sink order.Sink

	// Ready is called with the bound address once the server accepts
	// connections (for testing).
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an instance with the HTTP API",
		Long: `Run one carta instance.

The instance hydrates from the shared store (seeding it when empty), serves
the HTTP API, and follows writes made by other instances through the store
watch, the optional Redis relay and a periodic poll.

Example:
  carta serve --config carta.yaml
  CARTA_DB_PATH=/var/lib/carta.db carta serve --addr :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	logger.Debug("configuration", "config", cfg.Redacted())

	creds, err := credentials(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid admin credentials", err)
	}
	tokens, err := tokenService(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid token settings", err)
	}

	var cat catalog.Source
	if cfg.Catalog != "" {
		static, err := catalog.Load(cfg.Catalog)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load catalog", err)
		}
		logger.Info("catalog loaded", "path", cfg.Catalog, "entries", static.Len())
		cat = static
	}

	parentCtx := commandContext(cmd)
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	b := bus.New()
	unsubscribe := b.Subscribe(bus.AllTopics, func(e bus.Event) {
		logger.Debug("state event", "topic", e.Topic, "source", e.SourceInstanceID)
	})
	defer unsubscribe()

	e, err := openEnv(ctx, cmd, opts.RootOptions, cfg, "serve", envSetup{
		state:   []state.Option{state.WithAuthenticator(creds)},
		replica: []replica.Option{replica.WithPublisher(b)},
	})
	if err != nil {
		return err
	}
	defer e.Close()
	logger = logger.With("instance", e.replica.InstanceID())

	if cfg.Redis.URL != "" {
		stop, err := startRelay(ctx, cfg, e.replica, b, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start redis relay", err)
		}
		defer stop()
	}

	sink := opts.Sink
	if sink == nil {
		sink = orderSink(cfg, logger)
	}

	srv := api.New(api.Deps{
		Container: e.container,
		Sink:      sink,
		Tokens:    tokens,
		Catalog:   cat,
		Syncer:    e.replica,
		Logger:    logger,
	})
	router := srv.Echo()

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	router.Listener = ln

	syncDone := make(chan error, 1)
	go func() {
		syncDone <- e.replica.Run(ctx)
	}()

	httpDone := make(chan error, 1)
	go func() {
		httpDone <- router.Start(cfg.HTTP.Addr)
	}()

	addr := ln.Addr().String()
	logger.Info("instance ready", "addr", addr, "store", cfg.Store.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "carta listening on %s\n", addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-httpDone:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	e.replica.Stop()
	if err := <-syncDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sync service stopped", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "http server error", serveErr)
	}
	logger.Info("instance stopped gracefully")
	return nil
}

// credentials returns the admin account from cfg, or the built-in default
// account when no hash is configured.
func credentials(cfg *config.Config) (*auth.Credentials, error) {
	if cfg.Admin.PasswordHash == "" {
		return auth.DefaultCredentials()
	}
	return auth.NewCredentials(cfg.Admin.Username, cfg.Admin.PasswordHash)
}

// tokenService signs admin tokens with the configured secret. Without one a
// random per-process secret is used, so tokens do not survive a restart.
func tokenService(cfg *config.Config, logger *slog.Logger) (*auth.Tokens, error) {
	secret := cfg.Admin.TokenSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("no token secret configured, using a random one")
	}
	return auth.NewTokens(secret, auth.WithTTL(cfg.Admin.TokenTTL))
}

func orderSink(cfg *config.Config, logger *slog.Logger) order.Sink {
	if cfg.AMQP.URL == "" {
		logger.Info("no broker configured, orders are logged only")
		return order.LogSink{Logger: logger}
	}
	sink := order.NewAMQPSink(cfg.AMQP.URL, cfg.AMQP.Queue)
	logger.Info("orders published to broker", "queue", sink.Queue())
	return sink
}

// startRelay connects to Redis and forwards state events in both
// directions. The returned func detaches the relay and closes the client.
func startRelay(ctx context.Context, cfg *config.Config, svc *replica.Service, b *bus.Bus, logger *slog.Logger) (func(), error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	relay := bus.NewRedisRelay(client, cfg.Redis.Channel, svc.InstanceID(), svc)
	detach := relay.Attach(b)
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("redis relay stopped", "error", err)
		}
	}()
	logger.Info("redis relay attached", "channel", cfg.Redis.Channel)

	return func() {
		detach()
		if err := client.Close(); err != nil {
			logger.Error("error closing redis client", "error", err)
		}
	}, nil
}
