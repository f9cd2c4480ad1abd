package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Type)
			if event.Kind != "" {
				fmt.Fprintf(&buf, " %s", event.Kind)
			}
			if event.LocalID != 0 {
				fmt.Fprintf(&buf, " %d->%s", event.LocalID, event.RemoteID)
			}
			if event.Failed {
				fmt.Fprint(&buf, " FAILED")
			}
			fmt.Fprintln(&buf)
		}
	}
	return buf.String()
}

func assertPending(result *Result, a Assertion) error {
	var mismatches []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", name, got, *want))
		}
	}
	check("orders", a.Orders, result.Pending.Orders)
	check("payments", a.Payments, result.Pending.Payments)
	check("blocked_payments", a.BlockedPayments, result.Pending.BlockedPayments)

	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertPending,
		Expected: "pending counts to match",
		Actual:   strings.Join(mismatches, ", "),
		Trace:    result.Trace,
	}
}

func assertCount(result *Result, a Assertion, counts map[string]int) error {
	got := counts[a.Collection]
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d in %s", *a.Count, a.Collection),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    result.Trace,
	}
}

// assertTraceCount counts trace events of the given type, optionally
// restricted to a document kind.
func assertTraceCount(result *Result, a Assertion) error {
	got := 0
	for _, e := range result.Trace {
		if e.Type == a.Event && (a.Kind == "" || e.Kind == a.Kind) {
			got++
		}
	}
	if got == *a.Count {
		return nil
	}
	what := a.Event
	if a.Kind != "" {
		what += " " + a.Kind
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d %s event(s)", *a.Count, what),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    result.Trace,
	}
}

func assertFailedBatches(result *Result, a Assertion) error {
	if result.FailedBatches == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertFailedBatches,
		Expected: fmt.Sprintf("%d failed batch(es)", *a.Count),
		Actual:   fmt.Sprintf("%d", result.FailedBatches),
		Trace:    result.Trace,
	}
}

// EvaluateAssertions checks every assertion and returns one message per
// failure. Assertions are assumed to have passed validateScenario.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertPending:
			err = assertPending(result, a)
		case AssertCreated:
			err = assertCount(result, a, result.Created)
		case AssertSubmissions:
			err = assertCount(result, a, result.Submissions)
		case AssertTraceCount:
			err = assertTraceCount(result, a)
		case AssertFailedBatches:
			err = assertFailedBatches(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}
