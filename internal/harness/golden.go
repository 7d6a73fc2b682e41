package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Render formats a scenario result as stable text: the trace, one line per
// step, followed by the final projection.
//
//	scenario: late_progress
//	trace:
//	  #1 complete("cat") => appended
//	  #2 progress("cat", 90) => stale
//	final: seq=1 pending=0 in_flight=0 completed=1
//	  completed cat upscaledURL=http://x/cat-4x.png
//
// Seq in the final line is the last step that changed state.
func Render(name string, result *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)

	buf.WriteString("trace:\n")
	for _, ts := range result.Trace {
		fmt.Fprintf(&buf, "  #%d %s => %s", ts.Seq, ts.Mutation, ts.Outcome)
		if ts.Error != "" {
			fmt.Fprintf(&buf, " (%s)", ts.Error)
		}
		buf.WriteByte('\n')
	}

	v := result.Final
	c := v.Counts()
	fmt.Fprintf(&buf, "final: seq=%d pending=%d in_flight=%d completed=%d\n",
		v.Seq, c.Pending, c.InFlight, c.Completed)
	for _, j := range v.InFlight {
		fmt.Fprintf(&buf, "  %s %s %d%%", j.State, j.Name, j.Progress)
		if j.SourceURL != "" {
			fmt.Fprintf(&buf, " imageURL=%s", j.SourceURL)
		}
		buf.WriteByte('\n')
	}
	for _, j := range v.Completed {
		fmt.Fprintf(&buf, "  completed %s upscaledURL=%s", j.Name, j.ResultURL)
		if j.SourceURL != "" {
			fmt.Fprintf(&buf, " imageURL=%s", j.SourceURL)
		}
		buf.WriteByte('\n')
	}
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares the rendered result against
// testdata/golden/<scenario.Name>.golden.
//
// Returns an error only if the scenario could not be executed; mismatches
// fail t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Render(name, result))
}
