package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ledgersync/internal/ledger"
)

// Scenario describes one end-to-end sync story and what must hold after it.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// InvoicePrefix defaults to "WEB-"; PaymentPrefix defaults to InvoicePrefix.
	InvoicePrefix string `yaml:"invoice_prefix,omitempty"`
	PaymentPrefix string `yaml:"payment_prefix,omitempty"`

	// Steps run in order. Each step sets exactly one of its fields.
	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action in a scenario.
type Step struct {
	// Import loads a shop fixture into the store. The path is relative to
	// the scenario file.
	Import string `yaml:"import,omitempty"`

	// Fail makes the sandbox answer its next submission with an error.
	Fail *FailStep `yaml:"fail,omitempty"`

	// Sync runs the syncer once.
	Sync *SyncStep `yaml:"sync,omitempty"`
}

type FailStep struct {
	Status int    `yaml:"status"`
	Body   string `yaml:"body"`
}

type SyncStep struct {
	// Only restricts the run to the "Invoices" or "Payments" collection.
	// Empty means both, invoices first.
	Only []string `yaml:"only,omitempty"`

	// ExpectError marks a run that must report a failure.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Assertion types.
const (
	AssertPending       = "pending"
	AssertCreated       = "created"
	AssertSubmissions   = "submissions"
	AssertTraceCount    = "trace_count"
	AssertFailedBatches = "failed_batches"
)

// Assertion checks the final state of a scenario. Which fields apply depends
// on Type.
type Assertion struct {
	Type string `yaml:"type"`

	// pending
	Orders          *int `yaml:"orders,omitempty"`
	Payments        *int `yaml:"payments,omitempty"`
	BlockedPayments *int `yaml:"blocked_payments,omitempty"`

	// created, submissions
	Collection string `yaml:"collection,omitempty"`

	// trace_count
	Event string `yaml:"event,omitempty"`
	Kind  string `yaml:"kind,omitempty"`

	// created, submissions, trace_count, failed_batches
	Count *int `yaml:"count,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected and import paths are resolved against the
// scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, step := range scenario.Steps {
		if step.Import != "" && !filepath.IsAbs(step.Import) {
			scenario.Steps[i].Import = filepath.Join(base, step.Import)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}
	for _, prefix := range []string{s.InvoicePrefix, s.PaymentPrefix} {
		if prefix == "" {
			continue
		}
		if err := ledger.ValidatePrefix(prefix); err != nil {
			return err
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	set := 0
	if step.Import != "" {
		set++
	}
	if step.Fail != nil {
		set++
		if step.Fail.Status < 100 || step.Fail.Status > 599 {
			return fmt.Errorf("steps[%d].fail: status %d is not an HTTP status", index, step.Fail.Status)
		}
	}
	if step.Sync != nil {
		set++
		if _, err := parseKinds(step.Sync.Only); err != nil {
			return fmt.Errorf("steps[%d].sync: %w", index, err)
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of import, fail or sync is required", index)
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertPending:
		if a.Orders == nil && a.Payments == nil && a.BlockedPayments == nil {
			return fmt.Errorf("assertions[%d]: pending needs orders, payments or blocked_payments", index)
		}
		return nil
	case AssertCreated, AssertSubmissions:
		if ledger.Collection(a.Collection).Kind() == "" {
			return fmt.Errorf("assertions[%d]: unknown collection %q for %s", index, a.Collection, a.Type)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
	case AssertFailedBatches:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Count == nil {
		return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
	}
	if *a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
	}
	return nil
}

func parseKinds(only []string) ([]ledger.Kind, error) {
	if len(only) == 0 {
		return []ledger.Kind{ledger.KindInvoice, ledger.KindPayment}, nil
	}
	kinds := make([]ledger.Kind, 0, len(only))
	for _, name := range only {
		kind := ledger.Collection(name).Kind()
		if kind == "" {
			return nil, fmt.Errorf("unknown collection %q (want Invoices or Payments)", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
