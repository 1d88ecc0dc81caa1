package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/roach88/carta/internal/bus"
	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/snapshot"
	"github.com/roach88/carta/internal/state"
	"github.com/roach88/carta/internal/store"
)

// Blob keys in the shared store.
const (
	KeyAdminState = "admin-state"
	KeyCart       = "cart"
)

// DefaultPollInterval is the fallback re-read interval.
const DefaultPollInterval = 5 * time.Second

// DefaultWriteTimeout bounds one write-through.
const DefaultWriteTimeout = 5 * time.Second

// Store is the shared blob store. Implemented by *store.Store and
// *store.Memory.
type Store interface {
	Get(ctx context.Context, key string) (store.Record, error)
	Put(ctx context.Context, key string, value []byte, source string) (store.Record, error)
	Watch(ctx context.Context) <-chan struct{}
}

// Publisher receives change events. Publish is called inside the
// container's dispatch critical section: it must not block and must not
// dispatch.
type Publisher interface {
	Publish(bus.Event)
}

// Option configures a Service.
type Option func(*Service)

// WithPollInterval sets the fallback poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithNow sets the clock used for sync stamps.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets where change events go.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service replicates one container through a shared store.
//
// Thread-safety model:
//   - Notify(), Resume(): safe from any goroutine
//   - SyncNow(), Flush(), Hydrate(): safe from any goroutine; serialized
//     with local dispatches by the container
//   - Run(): must be called from exactly one goroutine
type Service struct {
	container    *state.Container
	store        Store
	pub          Publisher
	instanceID   string
	now          func() time.Time
	pollInterval time.Duration
	queue        *signalQueue
	logger       *slog.Logger

	// lastSeen is the newest admin-state version written or read by this
	// instance. Only updated inside the container's dispatch section.
	lastSeen atomic.Int64
}

// New creates a Service and registers its write-through hook on c.
func New(c *state.Container, s Store, instanceID string, opts ...Option) *Service {
	svc := &Service{
		container:    c,
		store:        s,
		instanceID:   instanceID,
		now:          time.Now,
		pollInterval: DefaultPollInterval,
		queue:        newSignalQueue(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = svc.logger.With("instance", instanceID)
	c.OnChange(svc.onChange)
	return svc
}

// InstanceID returns the identifier stamped on this instance's writes.
func (s *Service) InstanceID() string {
	return s.instanceID
}

// LastSeenVersion returns the newest admin-state version this instance has
// written or read.
func (s *Service) LastSeenVersion() int64 {
	return s.lastSeen.Load()
}

// Hydrate loads the persisted cart and admin state at startup. An empty
// store is seeded with the container's current state.
func (s *Service) Hydrate(ctx context.Context) error {
	if err := s.hydrateCart(ctx); err != nil {
		return err
	}

	rec, err := s.store.Get(ctx, KeyAdminState)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Info("shared store empty, seeding", "key", KeyAdminState)
		return s.Flush(ctx)
	case err != nil:
		return fmt.Errorf("hydrate: %w", err)
	}
	s.adopt(rec)
	return nil
}

func (s *Service) hydrateCart(ctx context.Context) error {
	rec, err := s.store.Get(ctx, KeyCart)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("hydrate cart: %w", err)
	}
	var items []model.CartLineItem
	if err := json.Unmarshal(rec.Value, &items); err != nil {
		s.logger.Warn("discarding unreadable cart", "key", KeyCart, "version", rec.Version, "error", err)
		return nil
	}
	s.container.Dispatch(state.LoadCart{Items: items})
	return nil
}

// Flush writes the current admin state and cart unconditionally.
func (s *Service) Flush(ctx context.Context) error {
	var flushErr error
	s.container.DispatchFunc(func(cur state.State) (state.Action, bool) {
		if err := s.writeCart(ctx, cur.Cart); err != nil {
			flushErr = err
			return state.SyncFailed{Operation: "write", Err: err.Error()}, true
		}
		a, err := s.writeAdmin(ctx, cur.Admin, cur.Admin)
		flushErr = err
		return a, true
	})
	return flushErr
}

// SyncNow reads the shared record and adopts it if it is newer and
// different. It is what every signal ends up calling.
func (s *Service) SyncNow(ctx context.Context) error {
	rec, err := s.store.Get(ctx, KeyAdminState)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.container.Dispatch(state.SyncFailed{Operation: "read", Err: err.Error()})
		return fmt.Errorf("sync: %w", err)
	}
	s.adopt(rec)
	return nil
}

// Notify schedules a re-read. Safe to call from any goroutine; repeated
// calls with the same reason coalesce while pending.
func (s *Service) Notify(reason string) {
	s.queue.Enqueue(signal{Reason: reason})
}

// Resume schedules a re-read after the instance was suspended.
func (s *Service) Resume() {
	s.Notify("resume")
}

// Stop makes Run return.
func (s *Service) Stop() {
	s.queue.Close()
}

// Run drains sync signals until ctx is done or Stop is called.
//
// ERROR HANDLING: a failed read is recorded in the notification log by
// SyncNow and otherwise ignored; the next signal tries again.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("sync service starting", "poll_interval", s.pollInterval)

	watch := s.store.Watch(ctx)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if sig, ok := s.queue.TryDequeue(); ok {
			if err := s.SyncNow(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("sync failed", "reason", sig.Reason, "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopping: context cancelled")
			s.queue.Close()
			return ctx.Err()
		case _, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
			s.queue.Enqueue(signal{Reason: "watch"})
		case <-ticker.C:
			s.queue.Enqueue(signal{Reason: "poll"})
		case _, ok := <-s.queue.Wait():
			if !ok {
				s.logger.Info("sync service stopping: stopped")
				return nil
			}
		}
	}
}

// adopt dispatches ReplaceState for rec if it is news to this instance.
func (s *Service) adopt(rec store.Record) {
	s.container.DispatchFunc(func(cur state.State) (state.Action, bool) {
		if rec.Version <= s.lastSeen.Load() {
			return nil, false
		}
		s.lastSeen.Store(rec.Version)

		p, err := snapshot.Decode(rec.Value)
		if err != nil {
			s.logger.Error("discarding external state", "key", KeyAdminState,
				"version", rec.Version, "source", rec.Source, "error", err)
			return state.SyncFailed{
				Operation: "read",
				Err:       fmt.Sprintf("version %d from %q: %v", rec.Version, rec.Source, err),
			}, true
		}

		remote, rerr := snapshot.ContentFingerprint(p)
		local, lerr := snapshot.ContentFingerprint(cur.Admin.ToPayload())
		if rerr == nil && lerr == nil && remote == local {
			return nil, false
		}

		s.logger.Debug("adopting external state", "version", rec.Version, "source", rec.Source)
		return state.ReplaceState{Payload: p, At: model.Stamp(s.now()), Source: rec.Source}, true
	})
}

// onChange is the container hook: write-through plus event fan-out.
func (s *Service) onChange(ch state.Change) []state.Action {
	switch ch.Action.Kind() {
	case state.KindReplaceState:
		// Adoptions are announced locally but never written back.
		src := ch.Action.(state.ReplaceState).Source
		s.publish(ch.Prev.Admin, ch.Next.Admin, ch.Next.Admin.ToPayload(), src)
		return nil
	case state.KindSyncFailed, state.KindMarkSynced, state.KindSetOnline:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
	defer cancel()

	var follow []state.Action
	if ch.Action.Kind() != state.KindLoadCart && !reflect.DeepEqual(ch.Prev.Cart, ch.Next.Cart) {
		if err := s.writeCart(ctx, ch.Next.Cart); err != nil {
			follow = append(follow, state.SyncFailed{Operation: "write", Err: err.Error()})
		}
	}
	if state.PayloadChanged(ch.Prev.Admin, ch.Next.Admin) {
		a, _ := s.writeAdmin(ctx, ch.Prev.Admin, ch.Next.Admin)
		follow = append(follow, a)
	}
	return follow
}

// writeAdmin persists next and returns the follow-up action describing the
// outcome: MarkSynced on success, SyncFailed otherwise.
func (s *Service) writeAdmin(ctx context.Context, prev, next state.AdminState) (state.Action, error) {
	at := model.Stamp(s.now())
	p := next.ToPayload()
	p.LastSyncedAt = &at

	data, err := snapshot.Encode(p)
	if err != nil {
		s.logger.Error("encode failed", "key", KeyAdminState, "error", err)
		return state.SyncFailed{Operation: "write", Err: err.Error()}, err
	}
	rec, err := s.store.Put(ctx, KeyAdminState, data, s.instanceID)
	if err != nil {
		s.logger.Error("write failed", "key", KeyAdminState, "error", err)
		return state.SyncFailed{Operation: "write", Err: err.Error()}, err
	}
	s.lastSeen.Store(rec.Version)
	s.logger.Debug("state written", "key", KeyAdminState, "version", rec.Version)

	s.publish(prev, next, p, s.instanceID)
	return state.MarkSynced{At: at}, nil
}

func (s *Service) writeCart(ctx context.Context, cart state.CartState) error {
	items := cart.Items
	if items == nil {
		items = []model.CartLineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if _, err := s.store.Put(ctx, KeyCart, data, s.instanceID); err != nil {
		s.logger.Error("write failed", "key", KeyCart, "error", err)
		return fmt.Errorf("write cart: %w", err)
	}
	return nil
}

// publish emits one event per changed sub-resource, then full-state-changed.
func (s *Service) publish(prev, next state.AdminState, p snapshot.Payload, source string) {
	if s.pub == nil {
		return
	}
	ts := model.Stamp(s.now())
	emit := func(topic string) {
		s.pub.Publish(bus.Event{Topic: topic, Payload: p, Timestamp: ts, SourceInstanceID: source})
	}
	if prev.Prices != next.Prices {
		emit(bus.TopicPrices)
	}
	if !reflect.DeepEqual(prev.DeliveryZones, next.DeliveryZones) {
		emit(bus.TopicZones)
	}
	if !reflect.DeepEqual(prev.Novels, next.Novels) {
		emit(bus.TopicNovels)
	}
	emit(bus.TopicFullState)
}
