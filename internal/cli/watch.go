package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/httpapi"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Updates int // stop after this many renders; 0 runs until interrupted
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the servers and print the view on every change",
		Long: `Seed from the status snapshot, follow the event stream, and print the
view each time it changes.

When the stream drops, watch reconnects with exponential backoff and
re-seeds from a fresh snapshot. With --format json every update is one
JSON document per line.

Exit codes:
  0 - Interrupted, or --updates reached
  1 - Gave up reconnecting to the event stream
  2 - Command error (bad configuration, journal unavailable)

Examples:
  upscalectl watch
  upscalectl watch --journal ./session.db
  upscalectl watch --updates 1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Updates, "updates", 0, "exit after printing this many updates")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}

	d, closeJournal, err := newDashboard(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer closeJournal()

	out := opts.formatter(cmd)
	out.VerboseLog("following %s", cfg.EventsURL)

	r := start(cmd.Context(), d)
	var (
		last     int64
		rendered int
	)
	for {
		changed := r.Changed()
		if v := r.View(); v.Seq > last {
			last = v.Seq
			if err := renderUpdate(out, v); err != nil {
				_ = r.stop()
				return err
			}
			rendered++
			if opts.Updates > 0 && rendered >= opts.Updates {
				return r.stop()
			}
		}

		select {
		case <-changed:
		case <-r.done:
			if err := r.stop(); err != nil {
				return WrapExitError(ExitFailure, "event stream lost", err)
			}
			return nil
		}
	}
}

func renderUpdate(out *OutputFormatter, v reconcile.View) error {
	if out.JSON() {
		return out.Success(httpapi.StateResponse{View: v, Counts: v.Counts()})
	}
	fmt.Fprintf(out.Writer, "--- seq %d ---\n", v.Seq)
	renderView(out.Writer, v)
	return nil
}
