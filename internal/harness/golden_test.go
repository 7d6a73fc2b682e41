package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// TestScenarios runs every scenario under testdata/scenarios and compares it
// with its golden file. Regenerate with -update.
func TestScenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRender(t *testing.T) {
	result := &Result{
		Trace: []TraceStep{
			{Seq: 1, Mutation: `submit("a")`, Outcome: reconcile.OutcomeInserted},
			{Seq: 2, Mutation: `submit("a")`, Outcome: reconcile.OutcomeRejected, Error: "INVALID_INPUT: boom"},
		},
		Final: reconcile.View{
			Seq: 1,
			InFlight: []reconcile.InFlightJob{
				{Name: "a", SourceURL: "http://x/a.png", State: topic.StatePending},
			},
		},
	}

	want := "scenario: demo\n" +
		"trace:\n" +
		"  #1 submit(\"a\") => inserted\n" +
		"  #2 submit(\"a\") => rejected (INVALID_INPUT: boom)\n" +
		"final: seq=1 pending=1 in_flight=0 completed=0\n" +
		"  pending a 0% imageURL=http://x/a.png\n"
	assert.Equal(t, want, string(Render("demo", result)))
}
