package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/carta/internal/bus"
	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/replica"
	"github.com/roach88/carta/internal/state"
	"github.com/roach88/carta/internal/store"
	"github.com/roach88/carta/internal/testutil"
)

// instance is one simulated carta process.
type instance struct {
	name      string
	container *state.Container
	replica   *replica.Service
	bus       *bus.Bus
}

// Harness runs one scenario. It holds the shared store and clock and the
// instances built on them.
type Harness struct {
	store     *store.Memory
	clock     *testutil.ManualClock
	instances map[string]*instance
	order     []string
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store. The instances are
// started in the order listed, so the first one seeds the store and the
// rest adopt its state. Tracing starts once every instance is up.
//
// Execution flow:
// 1. Start and hydrate every instance
// 2. Execute steps, checking expect clauses
// 3. Capture final states
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	h := newHarness(scenario)

	for _, name := range scenario.Instances {
		if err := h.start(ctx, name, scenario.Seed); err != nil {
			return nil, fmt.Errorf("failed to start instance %q: %w", name, err)
		}
	}

	result := NewResult()
	for _, name := range h.order {
		inst := h.instances[name]
		inst.bus.Subscribe(bus.AllTopics, func(e bus.Event) {
			result.record(TraceEvent{
				Instance: inst.name,
				Type:     EntryEvent,
				Topic:    e.Topic,
				Source:   e.SourceInstanceID,
			})
		})
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for name, inst := range h.instances {
		result.States[name] = inst.container.Snapshot()
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) *Harness {
	clock := testutil.NewManualClock(testutil.Epoch)
	return &Harness{
		store:     store.NewMemory(clock.Now),
		clock:     clock,
		instances: make(map[string]*instance, len(scenario.Instances)),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// start builds and hydrates one instance.
func (h *Harness) start(ctx context.Context, name string, seed *SeedConfig) error {
	logger := h.logger.With("instance", name)
	c := state.New(
		state.WithSeed(seedFor(seed)),
		state.WithNow(h.clock.Now),
		state.WithIDGenerator(testutil.NewSequenceGenerator(name)),
		state.WithLogger(logger),
	)
	b := bus.New()
	svc := replica.New(c, h.store, name,
		replica.WithNow(h.clock.Now),
		replica.WithPublisher(b),
		replica.WithLogger(logger),
	)
	if err := svc.Hydrate(ctx); err != nil {
		return err
	}

	h.instances[name] = &instance{name: name, container: c, replica: svc, bus: b}
	h.order = append(h.order, name)
	return nil
}

func seedFor(cfg *SeedConfig) state.Seed {
	seed := state.DefaultSeed()
	if cfg == nil {
		return seed
	}
	if cfg.Prices != nil {
		seed.Prices = *cfg.Prices
	}
	if cfg.Zones != nil {
		seed.Zones = cfg.Zones
	}
	return seed
}

// executeStep runs one step and checks its expect clause. Expectation
// mismatches are recorded on result; only malformed steps return an error.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	inst := h.instances[step.Instance]
	before := inst.container.Snapshot()

	var outcome string
	switch {
	case step.Dispatch != "":
		a, err := decodeAction(step.Dispatch, &step.Args)
		if err != nil {
			return err
		}
		idx := result.record(TraceEvent{Instance: inst.name, Type: EntryDispatch, Action: step.Dispatch})
		after, err := inst.container.Apply(a)
		switch {
		case err != nil:
			outcome = OutcomeRejected
		case after.Revision != before.Revision:
			outcome = OutcomeChanged
		default:
			outcome = OutcomeUnchanged
		}
		result.Trace[idx].Outcome = outcome

	case step.Sync:
		idx := result.record(TraceEvent{Instance: inst.name, Type: EntrySync})
		err := inst.replica.SyncNow(ctx)
		after := inst.container.Snapshot()
		switch {
		case err != nil || syncFailed(before, after):
			outcome = OutcomeFailed
		case after.Revision != before.Revision:
			outcome = OutcomeAdopted
		default:
			outcome = OutcomeCurrent
		}
		result.Trace[idx].Outcome = outcome

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		h.clock.Advance(d)

	case step.ClearStoreError:
		h.store.SetPutError(nil)

	case step.StoreError != "":
		h.store.SetPutError(errors.New(step.StoreError))
	}

	h.logger.Debug("step completed", "step", index, "instance", inst.name, "outcome", outcome)

	if step.Expect != nil {
		for _, msg := range checkExpect(step.Expect, outcome, inst.container.Snapshot()) {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %s", index, inst.name, msg))
		}
	}
	return nil
}

// syncFailed reports whether a sync recorded a new sync error.
func syncFailed(before, after state.State) bool {
	latest, ok := after.Admin.Notifications.Latest()
	if !ok || latest.Section != state.SectionSync || latest.Severity != model.SeverityError {
		return false
	}
	prev, ok := before.Admin.Notifications.Latest()
	return !ok || prev.ID != latest.ID
}

func checkExpect(e *StepExpect, outcome string, s state.State) []string {
	var errs []string
	if e.Outcome != "" && e.Outcome != outcome {
		errs = append(errs, fmt.Sprintf("expected outcome %q, got %q", e.Outcome, outcome))
	}
	if e.Notification == "" && e.Severity == "" {
		return errs
	}
	latest, ok := s.Admin.Notifications.Latest()
	if !ok {
		return append(errs, "expected a notification, log is empty")
	}
	if e.Notification != "" && latest.Title != e.Notification {
		errs = append(errs, fmt.Sprintf("expected notification %q, got %q", e.Notification, latest.Title))
	}
	if e.Severity != "" && latest.Severity != e.Severity {
		errs = append(errs, fmt.Sprintf("expected severity %q, got %q", e.Severity, latest.Severity))
	}
	return errs
}
