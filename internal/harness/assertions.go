package harness

import (
	"fmt"
	"strings"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	View     reconcile.View
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	buf.WriteString("\nFinal view:\n")
	for _, j := range e.View.InFlight {
		fmt.Fprintf(&buf, "  %s %s %d%%\n", j.State, j.Name, j.Progress)
	}
	for _, j := range e.View.Completed {
		fmt.Fprintf(&buf, "  completed %s\n", j.Name)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against v and returns one
// message per failure.
func EvaluateAssertions(v reconcile.View, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertState:
			err = assertState(v, a)
		case AssertCounts:
			err = assertCounts(v, a)
		case AssertInFlightOrder:
			err = assertOrder(v, a, inFlightNames(v))
		case AssertCompletedOrder:
			err = assertOrder(v, a, completedNames(v))
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertState(v reconcile.View, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: AssertState, Expected: expected, Actual: actual, View: v}
	}

	got := v.StateOf(a.Name)
	if got != a.State {
		return fail(fmt.Sprintf("%s is %s", a.Name, a.State), fmt.Sprintf("%s is %s", a.Name, got))
	}

	if a.Progress != nil {
		j, ok := v.FindInFlight(a.Name)
		if !ok {
			return fail(fmt.Sprintf("%s at %d%%", a.Name, *a.Progress), fmt.Sprintf("%s is not in flight", a.Name))
		}
		if j.Progress != *a.Progress {
			return fail(fmt.Sprintf("%s at %d%%", a.Name, *a.Progress), fmt.Sprintf("%s at %d%%", a.Name, j.Progress))
		}
	}

	if a.ResultURL != "" {
		c, ok := v.FindCompleted(a.Name)
		if !ok {
			return fail(fmt.Sprintf("%s completed with %s", a.Name, a.ResultURL), fmt.Sprintf("%s is not completed", a.Name))
		}
		if c.ResultURL != a.ResultURL {
			return fail(fmt.Sprintf("%s completed with %s", a.Name, a.ResultURL), fmt.Sprintf("%s completed with %s", a.Name, c.ResultURL))
		}
	}
	return nil
}

func assertCounts(v reconcile.View, a Assertion) error {
	c := v.Counts()
	var diffs []string
	check := func(label string, want *int, got int) {
		if want != nil && *want != got {
			diffs = append(diffs, fmt.Sprintf("%s=%d (want %d)", label, got, *want))
		}
	}
	check("pending", a.Pending, c.Pending)
	check("in_flight", a.InFlight, c.InFlight)
	check("completed", a.Completed, c.Completed)

	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertCounts,
		Expected: fmt.Sprintf("pending=%s in_flight=%s completed=%s", optInt(a.Pending), optInt(a.InFlight), optInt(a.Completed)),
		Actual:   strings.Join(diffs, ", "),
		View:     v,
	}
}

func assertOrder(v reconcile.View, a Assertion, got []string) error {
	want := make([]string, len(a.Names))
	for i, n := range a.Names {
		want[i] = topic.NormalizeName(n)
	}
	if strings.Join(want, ",") == strings.Join(got, ",") && len(want) == len(got) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
		View:     v,
	}
}

func inFlightNames(v reconcile.View) []string {
	out := make([]string, len(v.InFlight))
	for i, j := range v.InFlight {
		out[i] = j.Name
	}
	return out
}

func completedNames(v reconcile.View) []string {
	out := make([]string, len(v.Completed))
	for i, j := range v.Completed {
		out[i] = j.Name
	}
	return out
}

func optInt(p *int) string {
	if p == nil {
		return "*"
	}
	return fmt.Sprintf("%d", *p)
}
