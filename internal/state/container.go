package state

import (
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/roach88/carta/internal/model"
)

// Change describes one applied action.
type Change struct {
	Action Action
	Prev   State
	Next   State
}

// Hook observes applied actions and may return follow-up actions.
//
// Hooks run inside the dispatch critical section. They may read the
// container through Snapshot but must not call Dispatch, Apply or
// DispatchFunc.
type Hook func(Change) []Action

// Authenticator verifies admin credentials.
type Authenticator interface {
	Verify(username, password string) bool
}

// Option configures a Container.
type Option func(*Container)

// WithSeed sets the initial configuration.
func WithSeed(seed Seed) Option {
	return func(c *Container) { c.seed = seed }
}

// WithNow sets the wall-clock source.
func WithNow(now func() time.Time) Option {
	return func(c *Container) { c.now = now }
}

// WithIDGenerator sets the generator used for new records.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Container) { c.ids = g }
}

// WithAuthenticator sets the credential verifier used by Login.
// Without one, every login attempt is denied.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Container) { c.auth = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Container) { c.logger = l }
}

// Container owns the in-memory state of one instance.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// serialized; readers never block on hooks.
type Container struct {
	dispatchMu sync.Mutex // serializes Dispatch/Apply/DispatchFunc
	mu         sync.RWMutex
	state      State
	hooks      []Hook

	seed   Seed
	now    func() time.Time
	ids    IDGenerator
	auth   Authenticator
	clock  *Clock
	logger *slog.Logger
}

// New creates a container holding the seed state.
func New(opts ...Option) *Container {
	c := &Container{
		seed:   DefaultSeed(),
		now:    time.Now,
		ids:    UUIDv7Generator{},
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = initialState(c.seed, model.Stamp(c.now()))
	return c
}

// OnChange registers a hook. Hooks run in registration order.
func (c *Container) OnChange(h Hook) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	c.hooks = append(c.hooks, h)
}

// Snapshot returns the current state.
func (c *Container) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Dispatch applies a and returns the resulting state. Invalid actions are
// ignored: the current state is returned unchanged.
func (c *Container) Dispatch(a Action) State {
	s, _ := c.Apply(a)
	return s
}

// Apply is Dispatch that reports rejected actions. The returned error
// matches ErrInvalidAction; the state is unchanged in that case.
func (c *Container) Apply(a Action) (State, error) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	return c.applyLocked(a)
}

// DispatchFunc decides and applies an action atomically with respect to
// other dispatches. decide sees the current state; returning false skips
// the dispatch.
func (c *Container) DispatchFunc(decide func(State) (Action, bool)) State {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	a, ok := decide(c.Snapshot())
	if !ok {
		return c.Snapshot()
	}
	s, _ := c.applyLocked(a)
	return s
}

// Login verifies credentials and records the outcome. A failed attempt adds
// an error notification and leaves the authenticated flag untouched.
func (c *Container) Login(username, password string) bool {
	granted := c.auth != nil && c.auth.Verify(strings.TrimSpace(username), password)
	c.Dispatch(Login{Username: username, Granted: granted})
	return granted
}

// Logout ends the admin session.
func (c *Container) Logout() {
	c.Dispatch(Logout{})
}

// Prices returns the current price list.
func (c *Container) Prices() model.PriceConfig {
	return c.Snapshot().Admin.Prices
}

// Zones returns every delivery zone.
func (c *Container) Zones() []model.DeliveryZone {
	return c.Snapshot().Admin.DeliveryZones
}

// ActiveZones returns the selectable delivery zones.
func (c *Container) ActiveZones() []model.DeliveryZone {
	return c.Snapshot().Admin.ActiveZones()
}

// LookupZone finds an active zone by ID.
func (c *Container) LookupZone(id string) (model.DeliveryZone, bool) {
	return c.Snapshot().Admin.LookupZone(id)
}

// Cart returns the current cart items.
func (c *Container) Cart() []model.CartLineItem {
	return c.Snapshot().Cart.Items
}

func (c *Container) applyLocked(a Action) (State, error) {
	prev := c.Snapshot()
	next, changed, err := c.reduce(prev, a)
	if err != nil {
		c.logger.Debug("action rejected", "error", err)
		return prev, err
	}
	if !changed {
		return prev, nil
	}
	c.commit(next)

	var follow []Action
	for _, h := range c.hooks {
		follow = append(follow, h(Change{Action: a, Prev: prev, Next: next})...)
	}
	for _, f := range follow {
		cur := c.Snapshot()
		n, changed, err := c.reduce(cur, f)
		if err != nil {
			c.logger.Debug("follow-up action rejected", "error", err)
			continue
		}
		if changed {
			c.commit(n)
		}
	}
	return c.Snapshot(), nil
}

// reduce runs the transition for a. changed is false when the transition
// produced a structurally equal state; such actions do not advance the
// revision and do not reach hooks.
func (c *Container) reduce(prev State, a Action) (State, bool, error) {
	if a == nil {
		return prev, false, invalid("", "nil action")
	}
	if reflect.ValueOf(a).Kind() == reflect.Pointer {
		return prev, false, invalid(a.Kind(), "actions are passed by value")
	}
	t, ok := transitions[a.Kind()]
	if !ok {
		return prev, false, invalid(a.Kind(), "unknown action kind")
	}
	env := Env{Now: model.Stamp(c.now()), NewID: c.ids.Generate}
	next, err := t(prev, a, env)
	if err != nil {
		return prev, false, err
	}
	if reflect.DeepEqual(prev.Admin, next.Admin) && reflect.DeepEqual(prev.Cart, next.Cart) {
		return prev, false, nil
	}
	if replicated(a.Kind()) && PayloadChanged(prev.Admin, next.Admin) {
		next.Admin.Sync.PendingChanges = prev.Admin.Sync.PendingChanges + 1
	}
	next.Revision = c.clock.Next()
	return next, true, nil
}

func (c *Container) commit(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// PayloadChanged reports whether the replicated content (prices, zones,
// novels, notifications) differs. LastSyncedAt is not compared.
func PayloadChanged(prev, next AdminState) bool {
	return prev.Prices != next.Prices ||
		!reflect.DeepEqual(prev.DeliveryZones, next.DeliveryZones) ||
		!reflect.DeepEqual(prev.Novels, next.Novels) ||
		!reflect.DeepEqual(prev.Notifications, next.Notifications)
}
