package harness

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/cadstore/internal/engine"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		status := "ok"
		if ev.Error != "" {
			status = ev.Error
		}
		fmt.Fprintf(&buf, "  [%d] %s %s %v -> %s (%d deliveries)\n",
			ev.Step, ev.User, ev.Method, ev.Args, status, len(ev.Deliveries))
	}
	return buf.String()
}

// evaluate runs every assertion and returns failure messages.
func (h *Harness) evaluate(result *Result) []string {
	var errs []string
	for i, a := range h.scenario.Assertions {
		if err := h.assert(a, result); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) assert(a Assertion, result *Result) error {
	switch a.Type {
	case AssertDelivered:
		return assertDelivered(result, a)
	}

	e, err := h.registry.Engine(a.File)
	if err != nil {
		return err
	}
	switch a.Type {
	case AssertProperty:
		return h.assertProperty(e, a, result.Trace)
	case AssertObjectCount:
		if n := e.Store().Len(); n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d objects in %s", a.Count, a.File),
				Actual:   fmt.Sprintf("%d objects", n),
				Trace:    result.Trace,
			}
		}
		return nil
	case AssertDependsOn:
		return h.assertDependsOn(e, a, result.Trace)
	case AssertHistory:
		n := len(e.Journal().Stack().History(h.aliases.user(a.User)))
		if n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d undoable events for %s", a.Count, a.User),
				Actual:   fmt.Sprintf("%d events", n),
				Trace:    result.Trace,
			}
		}
		return nil
	case AssertConsistent:
		dangling, cycles := e.Dangling(), e.Cycles()
		if len(dangling) > 0 || len(cycles) > 0 {
			return &AssertionError{
				Type:     a.Type,
				Expected: "no dangling edges and no cycles",
				Actual:   fmt.Sprintf("%d dangling edges, %d objects on cycles", len(dangling), len(cycles)),
				Trace:    result.Trace,
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertProperty(e *engine.Engine, a Assertion, trace []TraceEvent) error {
	got, err := store.Read(e.Store(), h.aliases.object(a.Object), func(ent model.Entity) (any, error) {
		return ent.Prop(a.Prop)
	})
	if err != nil {
		return err
	}
	actual, err := generic(got)
	if err != nil {
		return err
	}
	expected, err := generic(h.aliases.resolve(a.Equals))
	if err != nil {
		return err
	}
	if !matchSubset(actual, expected) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s = %v", a.Object, a.Prop, expected),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertDependsOn(e *engine.Engine, a Assertion, trace []TraceEvent) error {
	var got []string
	for _, edge := range e.Graph().PublishersOf(h.aliases.object(a.Object)) {
		name := h.aliases.name(edge.Publisher.Object.String())
		if !slices.Contains(got, name) {
			got = append(got, name)
		}
	}
	want := make([]string, len(a.Publishers))
	for i, p := range a.Publishers {
		want[i] = "$" + strings.TrimPrefix(p, "$")
	}
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s depends on %v", a.Object, want),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    trace,
		}
	}
	return nil
}

// assertDelivered checks that user received at least Count messages of
// the given type, about Object when set. Count 0 means at least one.
func assertDelivered(result *Result, a Assertion) error {
	want := max(a.Count, 1)
	object := ""
	if a.Object != "" {
		object = "$" + strings.TrimPrefix(a.Object, "$")
	}
	n := 0
	for _, d := range result.Deliveries() {
		if d.User != a.User || d.Type != a.Message {
			continue
		}
		if object != "" && d.Object != object {
			continue
		}
		n++
	}
	if n < want {
		what := a.Message
		if object != "" {
			what += " for " + object
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("at least %d %s messages to %s", want, what, a.User),
			Actual:   fmt.Sprintf("%d messages", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// matchSubset reports whether actual contains expected. Objects match
// when every expected key matches; arrays must match element-wise.
func matchSubset(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range exp {
			if !matchSubset(act[k], v) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !matchSubset(act[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(actual, expected)
	}
}
