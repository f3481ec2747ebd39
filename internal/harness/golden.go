package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/payflow/internal/csvio"
)

// RunWithGolden executes a scenario, checks its per-event and final-state
// expectations, and compares the rendered balance table against a golden
// file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) {
	t.Helper()

	result, err := Run(s)
	require.NoError(t, err)

	assertExpectations(t, s, result)

	var buf bytes.Buffer
	require.NoError(t, csvio.WriteBalances(&buf, result.Balances))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, buf.Bytes())
}

// assertExpectations checks each event's expected outcome and the declared
// final account states.
func assertExpectations(t *testing.T, s *Scenario, result *Result) {
	t.Helper()

	for i, step := range s.Events {
		rejection, rejected := result.Rejections[i]
		if step.Fails == "" {
			assert.False(t, rejected, "event %d (%s tx=%d) unexpectedly rejected: %v",
				i, step.Type, step.Tx, rejection)
			continue
		}
		require.True(t, rejected, "event %d (%s tx=%d) expected to fail with %s",
			i, step.Type, step.Tx, step.Fails)
		assert.Equal(t, step.Fails, rejectionCode(rejection),
			"event %d (%s tx=%d) rejection code", i, step.Type, step.Tx)
	}

	byClient := make(map[uint16]int, len(result.Balances))
	for i, b := range result.Balances {
		byClient[b.Client] = i
	}
	for _, want := range s.Accounts {
		idx, ok := byClient[want.Client]
		require.True(t, ok, "client %d missing from output", want.Client)
		got := result.Balances[idx]

		assertAmount(t, want.Available, got.Available, "client %d available", want.Client)
		assertAmount(t, want.Held, got.Held, "client %d held", want.Client)
		assertAmount(t, want.Total, got.Total, "client %d total", want.Client)
		assert.Equal(t, want.Locked, got.Locked, "client %d locked", want.Client)
		assert.False(t, got.Held.IsNegative(), "client %d held must never go negative", want.Client)
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, format string, args ...any) {
	t.Helper()
	expected := decimal.RequireFromString(want)
	assert.Truef(t, got.Equal(expected), format+" = %s, want %s",
		append(args, got, expected)...)
}
