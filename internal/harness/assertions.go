package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/carta/internal/pricing"
	"github.com/roach88/carta/internal/snapshot"
	"github.com/roach88/carta/internal/state"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s", event.Seq, event.Instance, event.Type, event.Label())
			if event.Source != "" {
				fmt.Fprintf(&buf, " from %s", event.Source)
			}
			if event.Outcome != "" {
				fmt.Fprintf(&buf, " (%s)", event.Outcome)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertConverged:
			err = assertConverged(result, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertCartTotal:
			err = assertCartTotal(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// assertConverged checks that the instances hold the same replicated
// payload. Sync stamps are local and not compared.
func assertConverged(result *Result, assertion Assertion) error {
	names := assertion.Instances
	if len(names) == 0 {
		for name := range result.States {
			names = append(names, name)
		}
		slices.Sort(names)
	}
	if len(names) < 2 {
		return nil
	}

	fingerprints := make([]string, len(names))
	for i, name := range names {
		s, ok := result.States[name]
		if !ok {
			return fmt.Errorf("converged: no state for instance %q", name)
		}
		fp, err := snapshot.ContentFingerprint(s.Admin.ToPayload())
		if err != nil {
			return fmt.Errorf("converged: fingerprint %q: %w", name, err)
		}
		fingerprints[i] = fp
	}

	for i := 1; i < len(names); i++ {
		if fingerprints[i] == fingerprints[0] {
			continue
		}
		return &AssertionError{
			Type:     AssertConverged,
			Expected: fmt.Sprintf("instances %v hold equal payloads", names),
			Actual: fmt.Sprintf("%s and %s differ in %s", names[0], names[i],
				strings.Join(divergentSections(result.States[names[0]].Admin, result.States[names[i]].Admin), ", ")),
			Trace: result.Trace,
		}
	}
	return nil
}

func divergentSections(a, b state.AdminState) []string {
	var out []string
	if a.Prices != b.Prices {
		out = append(out, "prices")
	}
	if !reflect.DeepEqual(a.DeliveryZones, b.DeliveryZones) {
		out = append(out, "zones")
	}
	if !reflect.DeepEqual(a.Novels, b.Novels) {
		out = append(out, "novels")
	}
	if !reflect.DeepEqual(a.Notifications, b.Notifications) {
		out = append(out, "notifications")
	}
	if len(out) == 0 {
		out = append(out, "encoding")
	}
	return out
}

// assertFinalState checks the first row of a state table that matches
// Where against Expect, or that no row matches when Absent is set.
func assertFinalState(result *Result, assertion Assertion) error {
	s, ok := result.States[assertion.Instance]
	if !ok {
		return fmt.Errorf("final_state: no state for instance %q", assertion.Instance)
	}
	rows, err := tableRows(s, assertion.Table)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	where := formatWhere(assertion.Where)
	for _, row := range rows {
		if !matchFields(row, assertion.Where) {
			continue
		}
		if assertion.Absent {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("no row in %s on %s%s", assertion.Table, assertion.Instance, where),
				Actual:   fmt.Sprintf("found %v", row),
			}
		}
		for field, expected := range assertion.Expect {
			actual, exists := row[field]
			if !exists {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("%s.%s = %v on %s", assertion.Table, field, expected, assertion.Instance),
					Actual:   "field not present",
				}
			}
			if !stateValuesEqual(expected, actual) {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("%s.%s = %v on %s", assertion.Table, field, expected, assertion.Instance),
					Actual:   fmt.Sprintf("%s.%s = %v", assertion.Table, field, actual),
				}
			}
		}
		return nil
	}

	if assertion.Absent {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("row in %s on %s%s", assertion.Table, assertion.Instance, where),
		Actual:   "no matching row",
	}
}

// tableRows renders one section of s as JSON objects, the shape the API
// serves.
func tableRows(s state.State, table string) ([]map[string]any, error) {
	var v any
	switch table {
	case "prices":
		v = []any{s.Admin.Prices}
	case "zones":
		v = s.Admin.DeliveryZones
	case "novels":
		v = s.Admin.Novels
	case "cart":
		v = s.Cart.Items
	case "notifications":
		v = s.Admin.Notifications
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// assertCartTotal checks the cart of an instance priced with its own price
// list. Expect keys are cash, transfer and total.
func assertCartTotal(result *Result, assertion Assertion) error {
	s, ok := result.States[assertion.Instance]
	if !ok {
		return fmt.Errorf("cart_total: no state for instance %q", assertion.Instance)
	}
	prices := s.Admin.Prices
	totals := pricing.TotalsByPaymentMethod(&prices, s.Cart.Items)
	actual := map[string]any{
		"cash":     totals.Cash,
		"transfer": totals.Transfer,
		"total":    totals.Sum(),
	}

	for key, expected := range assertion.Expect {
		got, exists := actual[key]
		if !exists {
			return fmt.Errorf("cart_total: unknown key %q", key)
		}
		if !stateValuesEqual(expected, got) {
			return &AssertionError{
				Type:     AssertCartTotal,
				Expected: fmt.Sprintf("%s = %v on %s", key, expected, assertion.Instance),
				Actual:   fmt.Sprintf("%s = %v", key, got),
			}
		}
	}
	return nil
}

// traceMatches reports whether event passes the assertion's filters.
func traceMatches(event TraceEvent, assertion Assertion) bool {
	if assertion.Instance != "" && event.Instance != assertion.Instance {
		return false
	}
	if assertion.Source != "" && event.Source != assertion.Source {
		return false
	}
	return event.Label() == assertion.Action
}

// assertTraceContains checks if the trace contains an entry matching the
// label and filters.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if traceMatches(event, assertion) {
			return nil
		}
	}

	expected := assertion.Action
	if assertion.Instance != "" {
		expected += " on " + assertion.Instance
	}
	if assertion.Source != "" {
		expected += " from " + assertion.Source
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if labels appear in the specified order.
// Labels don't need to be consecutive (intervening entries are allowed).
// An entry "b:prices-changed" only matches on instance b.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)

	for i, event := range trace {
		for _, want := range assertion.Actions {
			if positions[want] != 0 {
				continue
			}
			inst, label, qualified := strings.Cut(want, ":")
			if !qualified {
				inst, label = "", want
			}
			if event.Label() == label && (inst == "" || inst == event.Instance) {
				positions[want] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, want := range assertion.Actions {
		if positions[want] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all entries present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing entry: %s", want),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the label appears exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if traceMatches(event, assertion) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// matchFields checks if row contains all expected fields (subset match).
func matchFields(row map[string]any, expected map[string]any) bool {
	for key, want := range expected {
		got, exists := row[key]
		if !exists || !stateValuesEqual(want, got) {
			return false
		}
	}
	return true
}

// formatWhere renders where for error messages in key order.
func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return ""
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, where[k])
	}
	return " where " + strings.Join(parts, ", ")
}

// stateValuesEqual compares a value written in a scenario against a value
// read back from JSON. Numbers compare by value regardless of type; maps
// use subset semantics.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if ef, ok := toFloat(expected); ok {
		af, ok := toFloat(actual)
		return ok && ef == af
	}

	switch exp := expected.(type) {
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !stateValuesEqual(exp[i], act[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		act, ok := actual.(map[string]any)
		return ok && matchFields(act, exp)
	}

	return reflect.DeepEqual(expected, actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
