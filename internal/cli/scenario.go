package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/harness"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/logger"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Filter string // glob on scenario names
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioRunResult holds the overall result.
type ScenarioRunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file-or-dir>...",
		Short: "Run reconciliation scenarios",
		Long: `Run scenario files against a fresh engine.

Each argument is a scenario YAML file or a directory of them. A scenario
lists mutations in arrival order, the outcome expected for each, and
assertions on the final view. With --verbose the trace and final view of
every scenario are printed.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (unreadable or invalid scenario file)

Examples:
  upscalectl scenario ./scenarios
  upscalectl scenario ./scenarios --filter "seed_*"
  upscalectl scenario late_progress.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose name matches this glob")

	return cmd
}

func runScenarios(opts *ScenarioOptions, paths []string, cmd *cobra.Command) error {
	scenarios, err := loadScenarios(paths)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}

	out := opts.formatter(cmd)
	h := harness.New(harness.WithLogger(logger.For(logger.ComponentEngine)))

	result := ScenarioRunResult{Scenarios: []ScenarioResult{}}
	for _, s := range scenarios {
		if opts.Filter != "" {
			matched, err := filepath.Match(opts.Filter, s.Name)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid filter pattern", err)
			}
			if !matched {
				continue
			}
		}

		res, err := h.Run(cmd.Context(), s)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s did not run", s.Name), err)
		}

		result.Scenarios = append(result.Scenarios, ScenarioResult{Name: s.Name, Pass: res.Pass, Errors: res.Errors})
		result.Total++
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}

		if !out.JSON() && opts.Verbose {
			fmt.Fprint(out.Writer, string(harness.Render(s.Name, res)))
		}
	}

	if out.JSON() {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		w := out.Writer
		for _, s := range result.Scenarios {
			if s.Pass {
				fmt.Fprintf(w, "✓ %s\n", s.Name)
				continue
			}
			fmt.Fprintf(w, "✗ %s\n", s.Name)
			for _, e := range s.Errors {
				fmt.Fprintf(w, "    %s\n", e)
			}
		}
		fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// loadScenarios expands directories and loads every scenario in argument
// order.
func loadScenarios(paths []string) ([]*harness.Scenario, error) {
	var out []*harness.Scenario
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			s, err := harness.LoadDir(p)
			if err != nil {
				return nil, err
			}
			out = append(out, s...)
			continue
		}
		s, err := harness.LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}
