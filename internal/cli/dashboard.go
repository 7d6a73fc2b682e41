package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/config"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/dashboard"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/journal"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/logger"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/metrics"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/upstream"
)

func newClient(cfg config.Config) *upstream.Client {
	return upstream.New(cfg.APIURL, cfg.EventsURL,
		upstream.WithTimeout(cfg.HTTPTimeout),
		upstream.WithLogger(logger.For(logger.ComponentUpstream)))
}

// newDashboard builds a dashboard from cfg. When a journal path is
// configured every applied mutation is recorded in a new session; the
// returned close function releases the journal.
func newDashboard(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*dashboard.Dashboard, func(), error) {
	opts := []dashboard.Option{
		dashboard.WithLogger(logger.For(logger.ComponentDashboard)),
		dashboard.WithMetrics(m),
		dashboard.WithRefreshInterval(cfg.RefreshInterval),
		dashboard.WithBackOff(dashboard.ReconnectBackOff(cfg.ReconnectInitial, cfg.ReconnectMax, cfg.ReconnectMaxElapsed)),
	}

	closeFn := func() {}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, journal.WithLogger(logger.For(logger.ComponentJournal)))
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		session, err := j.NewSession(ctx, cfg.APIURL)
		if err != nil {
			j.Close()
			return nil, nil, WrapExitError(ExitCommandError, "failed to start journal session", err)
		}
		logger.For(logger.ComponentCLI).Infow("journaling mutations", "path", cfg.JournalPath, "session", session.ID())
		opts = append(opts, dashboard.WithRecorder(session))
		closeFn = func() {
			if err := j.Close(); err != nil {
				logger.For(logger.ComponentCLI).Warnw("closing journal failed", "error", err)
			}
		}
	}

	return dashboard.New(newClient(cfg), opts...), closeFn, nil
}

// running is a dashboard whose Run loop is active.
type running struct {
	*dashboard.Dashboard
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// start runs d in the background until stop is called or ctx ends.
func start(ctx context.Context, d *dashboard.Dashboard) *running {
	ctx, cancel := context.WithCancel(ctx)
	r := &running{Dashboard: d, cancel: cancel, done: make(chan struct{})}
	go func() {
		r.err = d.Run(ctx)
		close(r.done)
	}()
	return r
}

// stop cancels Run and waits for it. A cancelled run is not an error.
func (r *running) stop() error {
	r.cancel()
	<-r.done
	if r.err != nil && !isCancel(r.err) {
		return fmt.Errorf("dashboard: %w", r.err)
	}
	return nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
