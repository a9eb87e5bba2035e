package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/castkeep/ledgergate/canon"
)

// RunWithGolden runs the scenario and compares its audit trace against
// testdata/golden/<name>.golden.
//
// The snapshot holds only fields that are stable across runs: operation
// type, verdict, error kind, slot, and logical sequence. Tokens and
// addresses are deliberately excluded so golden files stay hand-writable.
//
// Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) *RunResult {
	t.Helper()

	result := Run(t, sc)

	rows := make([]any, len(result.Trace))
	for i, r := range result.Trace {
		rows[i] = map[string]any{
			"op":         r.OpType,
			"verdict":    r.Verdict,
			"error_kind": r.ErrorKind,
			"slot":       r.Slot,
			"seq":        r.Seq,
		}
	}
	snapshot, err := canon.Marshal(map[string]any{
		"scenario": sc.Name,
		"trace":    rows,
	})
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, snapshot)
	return result
}
