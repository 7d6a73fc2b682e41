package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/httpapi"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/logger"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and serve its view over HTTP",
		Long: `Run the dashboard and expose it over HTTP:

  GET  /healthz     liveness and stream connection state
  GET  /v1/state    the current view as JSON
  POST /v1/topics   submit {"name", "imageURL"}; add ?wait=true to block until settled
  GET  /metrics     Prometheus metrics

Examples:
  upscalectl serve --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides serve_addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.ServeAddr = opts.Addr
	}

	m := metrics.New()
	d, closeJournal, err := newDashboard(cmd.Context(), cfg, m)
	if err != nil {
		return err
	}
	defer closeJournal()

	r := start(cmd.Context(), d)
	srv := httpapi.Server{Dashboard: d, Metrics: m, Log: logger.For(logger.ComponentHTTP)}

	// Stop serving when the dashboard gives up.
	serveCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-serveCtx.Done():
		}
	}()

	serveErr := srv.ListenAndServe(serveCtx, cfg.ServeAddr)
	runErr := r.stop()
	if serveErr != nil {
		return WrapExitError(ExitFailure, "projection endpoint failed", serveErr)
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "event stream lost", runErr)
	}
	return nil
}
