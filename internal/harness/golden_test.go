package harness

import (
	"testing"
)

func TestAssertGolden_ExistingResult(t *testing.T) {
	r := NewResult()
	r.addEvent(TraceEvent{Type: EventImport, Detail: "1 order(s), 0 payment(s) inserted"})
	r.addEvent(TraceEvent{Type: EventFail, Status: 503})

	if err := AssertGolden(t, "existing_result", r); err != nil {
		t.Fatal(err)
	}
}
