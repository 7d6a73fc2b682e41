package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// SubmitResult is the outcome of one submit command.
type SubmitResult struct {
	Handle topic.Handle `json:"handle"`
	State  topic.State  `json:"state"`
	Error  string       `json:"error,omitempty"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <name> <image-url>",
		Short: "Submit an image for upscaling",
		Long: `Submit an image and wait until the server accepts or rejects it.

The job is shown as pending until the submit call settles. If the call
fails the pending entry is rolled back, unless the server already reported
the job on the event stream.

Exit codes:
  0 - Submission accepted
  1 - Submission failed and was rolled back
  2 - Command error (invalid name or URL, job already known)

Examples:
  upscalectl submit cat https://example.com/cat.png`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runSubmit(opts *RootOptions, name, imageURL string, cmd *cobra.Command) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}

	d, closeJournal, err := newDashboard(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer closeJournal()

	r := start(cmd.Context(), d)
	defer func() { _ = r.stop() }()

	// Wait for the initial snapshot so duplicates of known jobs are
	// rejected locally and a late seed cannot drop the confirmed entry.
	select {
	case <-r.Ready():
	case <-r.done:
		return WrapExitError(ExitFailure, "dashboard stopped", r.stop())
	}

	sub, err := r.Submit(cmd.Context(), name, imageURL)
	if err != nil {
		if topic.IsInvalidInput(err) {
			return WrapExitError(ExitCommandError, "invalid submission", err)
		}
		return WrapExitError(ExitFailure, "submission failed", err)
	}

	out := opts.formatter(cmd)
	out.VerboseLog("submitted %s as pending (token %s)", sub.Handle.Name, sub.Handle.Token)

	select {
	case <-sub.Done():
	case <-cmd.Context().Done():
		return WrapExitError(ExitFailure, "interrupted before the server answered", cmd.Context().Err())
	}

	res := SubmitResult{Handle: sub.Handle, State: r.View().StateOf(sub.Handle.Name)}
	if sub.Err() != nil {
		res.Error = sub.Err().Error()
	}

	if out.JSON() {
		if err := out.Success(res); err != nil {
			return err
		}
	} else if res.Error == "" {
		fmt.Fprintf(out.Writer, "✓ %s submitted (%s)\n", res.Handle.Name, res.State)
	} else {
		fmt.Fprintf(out.Writer, "✗ %s failed: %s (%s)\n", res.Handle.Name, res.Error, res.State)
	}

	if sub.Err() != nil {
		return WrapExitError(ExitFailure, "submission rolled back", sub.Err())
	}
	return nil
}
