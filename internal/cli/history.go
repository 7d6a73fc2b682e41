package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recently completed jobs",
		Long: `List the most recent completed jobs known to the producer, newest first.

Examples:
  upscalectl history
  upscalectl history --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, cmd)
		},
	}
}

func runHistory(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}

	jobs, err := newClient(cfg).History(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fetch history", err)
	}

	out := opts.formatter(cmd)
	if out.JSON() {
		if jobs == nil {
			jobs = []topic.Job{}
		}
		return out.Success(jobs)
	}

	fmt.Fprintf(out.Writer, "%d completed job(s)\n", len(jobs))
	for _, j := range jobs {
		renderCompleted(out.Writer, j.Name, j.ResultURL, j.SourceURL)
	}
	return nil
}
