// Package harness runs YAML-defined conformance scenarios against the
// ledger.
//
// A scenario lists payment events in order, with optional per-event failure
// expectations, and the final balances every involved client must end up
// with. Scenarios document the ledger's observable behavior in data rather
// than in test code, and double as golden-output fixtures.
package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/payflow/internal/event"
	"github.com/roach88/payflow/internal/ledger"
	"github.com/roach88/payflow/internal/store"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; it is also the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Events contains the payment events in arrival order.
	Events []EventStep `yaml:"events"`

	// Accounts lists the expected final balances, one entry per client
	// that must appear in the output.
	Accounts []ExpectedAccount `yaml:"accounts"`
}

// EventStep is one payment event in a scenario flow.
type EventStep struct {
	// Type is the raw event type string, validated like any input record.
	Type string `yaml:"type"`

	Client uint16 `yaml:"client"`
	Tx     uint32 `yaml:"tx"`

	// Amount is the decimal amount, empty for contest events.
	Amount string `yaml:"amount,omitempty"`

	// Fails names the expected rejection code (a ledger rule code or an
	// event validation code). Empty means the event must succeed.
	Fails string `yaml:"fails,omitempty"`
}

// ExpectedAccount is the required final state of one client.
type ExpectedAccount struct {
	Client    uint16 `yaml:"client"`
	Available string `yaml:"available"`
	Held      string `yaml:"held"`
	Total     string `yaml:"total"`
	Locked    bool   `yaml:"locked"`
}

// Load reads a scenario from a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s has no name", path)
	}
	if len(s.Events) == 0 {
		return nil, fmt.Errorf("scenario %q has no events", s.Name)
	}
	return &s, nil
}

// LoadDir loads every *.yaml scenario in a directory, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var scenarios []*Scenario
	for _, path := range paths {
		s, err := Load(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// Result holds the outcome of running a scenario.
type Result struct {
	Balances []ledger.Balance
	// Rejections maps event index to the rejection that occurred there.
	Rejections map[int]error
}

// Run executes the scenario's events sequentially over a fresh in-memory
// store and returns the final balances. Events are validated through the
// real gate; rejected events are recorded, not fatal, mirroring the
// processor's behavior.
func Run(s *Scenario) (*Result, error) {
	txs := store.NewMemoryStore()
	accounts := make(map[uint16]*ledger.Account)
	result := &Result{Rejections: make(map[int]error)}

	for i, step := range s.Events {
		rec := event.Record{Type: step.Type, Client: step.Client, Tx: step.Tx}
		if step.Amount != "" {
			amount, err := decimal.NewFromString(step.Amount)
			if err != nil {
				return nil, fmt.Errorf("scenario %q event %d: invalid amount %q", s.Name, i, step.Amount)
			}
			rec.Amount = &amount
		}

		ev, err := event.FromRecord(rec)
		if err != nil {
			result.Rejections[i] = err
			continue
		}

		acct, ok := accounts[ev.Client]
		if !ok {
			acct = ledger.NewAccount(ev.Client, txs)
			accounts[ev.Client] = acct
		}
		if err := acct.Apply(ev); err != nil {
			result.Rejections[i] = err
		}
	}

	for _, acct := range accounts {
		result.Balances = append(result.Balances, acct.Balance())
	}
	sort.Slice(result.Balances, func(i, j int) bool {
		return result.Balances[i].Client < result.Balances[j].Client
	})
	return result, nil
}

// rejectionCode extracts the comparable code string from a rejection error.
func rejectionCode(err error) string {
	if code := ledger.RuleCodeOf(err); code != "" {
		return string(code)
	}
	if code := event.ValidationCodeOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}
