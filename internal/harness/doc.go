// Package harness runs sync scenarios end to end.
//
// A scenario is a YAML file listing steps (import a shop fixture, make the
// ledger fail its next submission, run a sync) and assertions about the final
// state. Each scenario runs against a fresh in-memory store and an in-process
// sandbox ledger with a fixed clock, sequential run IDs and sequential remote
// IDs, so the resulting trace is byte-for-byte reproducible and can be
// compared against a golden file:
//
//	func TestScenarios(t *testing.T) {
//	    sc, err := harness.LoadScenario("testdata/scenarios/retry.yaml")
//	    require.NoError(t, err)
//	    result, err := harness.RunWithGolden(t, sc)
//	    require.NoError(t, err)
//	    assert.True(t, result.Pass, result.Errors)
//	}
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
