// Package config loads process configuration.
//
// Sources, lowest precedence first: built-in defaults, a YAML file checked
// against an embedded CUE schema, .env files, CARTA_* environment variables.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/state"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix starts every environment override.
const EnvPrefix = "CARTA_"

// Config is the full process configuration.
type Config struct {
	Instance string      `yaml:"instance"`
	Store    StoreConfig `yaml:"store"`
	Sync     SyncConfig  `yaml:"sync"`
	HTTP     HTTPConfig  `yaml:"http"`
	Redis    RedisConfig `yaml:"redis"`
	AMQP     AMQPConfig  `yaml:"amqp"`
	Admin    AdminConfig `yaml:"admin"`
	Catalog  string      `yaml:"catalog"`
	Seed     SeedConfig  `yaml:"seed"`
}

type StoreConfig struct {
	Path          string        `yaml:"path"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

type SyncConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig enables the cross-process change relay when URL is set.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// AMQPConfig enables broker order submission when URL is set.
type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// AdminConfig holds the admin account. An empty PasswordHash means the
// built-in default password.
type AdminConfig struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"`
	TokenSecret  string        `yaml:"token_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// SeedConfig overrides the initial state used when the store is empty.
type SeedConfig struct {
	Prices *model.PriceConfig `yaml:"prices"`
	Zones  []state.ZoneSeed   `yaml:"zones"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:          "carta.db",
			WatchInterval: 250 * time.Millisecond,
		},
		Sync:  SyncConfig{PollInterval: 5 * time.Second},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Redis: RedisConfig{Channel: "carta:state"},
		AMQP:  AMQPConfig{Queue: "orders.submitted"},
		Admin: AdminConfig{
			Username: "root",
			TokenTTL: 8 * time.Hour,
		},
	}
}

// StateSeed returns the initial state configuration. Unset parts fall back
// to state.DefaultSeed.
func (c *Config) StateSeed() state.Seed {
	seed := state.DefaultSeed()
	if c.Seed.Prices != nil {
		seed.Prices = *c.Seed.Prices
	}
	if len(c.Seed.Zones) > 0 {
		seed.Zones = append([]state.ZoneSeed(nil), c.Seed.Zones...)
	}
	return seed
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Store.WatchInterval <= 0 {
		errs = append(errs, errors.New("store.watch_interval must be positive"))
	}
	if c.Sync.PollInterval <= 0 {
		errs = append(errs, errors.New("sync.poll_interval must be positive"))
	}
	if c.Admin.TokenTTL <= 0 {
		errs = append(errs, errors.New("admin.token_ttl must be positive"))
	}
	if c.Seed.Prices != nil && !c.Seed.Prices.Valid() {
		errs = append(errs, errors.New("seed.prices must be non-negative"))
	}
	seen := make(map[string]bool, len(c.Seed.Zones))
	for i, z := range c.Seed.Zones {
		if seen[z.ID] {
			errs = append(errs, fmt.Errorf("seed.zones[%d]: duplicate id %q", i, z.ID))
		}
		seen[z.ID] = true
	}
	return errors.Join(errs...)
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	lookupEnv func(string) (string, bool)
	dotenv    []string
}

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(l *loader) { l.lookupEnv = fn }
}

// WithDotEnv loads the given .env files into the process environment before
// overrides are read. Missing files are skipped; existing variables win.
func WithDotEnv(paths ...string) Option {
	return func(l *loader) { l.dotenv = paths }
}

// Load builds the configuration. An empty path skips the YAML file.
func Load(path string, opts ...Option) (*Config, error) {
	l := &loader{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}

	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	for _, p := range l.dotenv {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
	}
	if err := applyEnv(cfg, l.lookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := CheckSchema(data); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// CheckSchema validates raw YAML against the embedded schema. A document
// with no content is valid.
func CheckSchema(data []byte) error {
	var probe yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if probe.Kind == 0 {
		return nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := cueyaml.Validate(data, def); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("INSTANCE", &cfg.Instance)
	str("DB_PATH", &cfg.Store.Path)
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_CHANNEL", &cfg.Redis.Channel)
	str("AMQP_URL", &cfg.AMQP.URL)
	str("AMQP_QUEUE", &cfg.AMQP.Queue)
	str("ADMIN_USERNAME", &cfg.Admin.Username)
	str("ADMIN_PASSWORD_HASH", &cfg.Admin.PasswordHash)
	str("TOKEN_SECRET", &cfg.Admin.TokenSecret)
	str("CATALOG", &cfg.Catalog)

	return errors.Join(
		dur("WATCH_INTERVAL", &cfg.Store.WatchInterval),
		dur("POLL_INTERVAL", &cfg.Sync.PollInterval),
		dur("TOKEN_TTL", &cfg.Admin.TokenTTL),
	)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Admin.PasswordHash != "" {
		out.Admin.PasswordHash = "<redacted>"
	}
	if out.Admin.TokenSecret != "" {
		out.Admin.TokenSecret = "<redacted>"
	}
	out.Redis.URL = redactURL(out.Redis.URL)
	out.AMQP.URL = redactURL(out.AMQP.URL)
	return out
}

func redactURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	return u[:scheme+3] + "<redacted>" + u[at:]
}
