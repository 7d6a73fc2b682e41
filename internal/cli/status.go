package cli

import (
	"github.com/spf13/cobra"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/httpapi"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/logger"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/snapshot"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Fetch one snapshot and print it",
		Long: `Fetch the current status snapshot once and print the resulting view.

Malformed records are skipped with a warning, exactly as the live
dashboard does. The event stream is not consulted.

Exit codes:
  0 - Snapshot fetched
  1 - The server could not be reached
  2 - Command error (bad configuration)

Examples:
  upscalectl status
  upscalectl status --api-url http://localhost:3000 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}

	loader := snapshot.New(newClient(cfg), nil, snapshot.WithLogger(logger.For(logger.ComponentSnapshot)))
	snap, err := loader.Load(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fetch status", err)
	}

	store := reconcile.New()
	store.Seed(snap)
	v := store.View()

	out := opts.formatter(cmd)
	if out.JSON() {
		return out.Success(httpapi.StateResponse{View: v, Counts: v.Counts()})
	}
	renderView(out.Writer, v)
	return nil
}
