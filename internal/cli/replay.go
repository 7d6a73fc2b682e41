package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
	Session string // optional - specific session only
	All     bool
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	Session    string             `json:"session"`
	Mutations  int                `json:"mutations"`
	Gaps       int                `json:"gaps"`
	Mismatches []journal.Mismatch `json:"mismatches"`
	Diverged   bool               `json:"diverged"`
	OK         bool               `json:"ok"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions      []ReplaySessionResult `json:"sessions"`
	TotalSessions int                   `json:"total_sessions"`
	AllOK         bool                  `json:"all_ok"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a mutation journal and verify its outcomes",
		Long: `Replay journaled sessions against a fresh store and verify determinism.

Each session is replayed twice. Replay fails when the two runs disagree, or
when a replayed outcome differs from the one recorded while the dashboard
was running. By default only the latest session is replayed.

Exit codes:
  0 - Every replayed session matches its recording
  1 - Mismatch or divergence detected
  2 - Command error (journal not found, unknown session, etc.)

Examples:
  upscalectl replay --journal ./session.db
  upscalectl replay --journal ./session.db --session 0190c0de-...
  upscalectl replay --journal ./session.db --all --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the journal database (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay this session only")
	cmd.Flags().BoolVar(&opts.All, "all", false, "replay every session")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if opts.All && opts.Session != "" {
		return NewExitError(ExitCommandError, "--all and --session are mutually exclusive")
	}

	j, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	ids, err := sessionsToReplay(ctx, j, opts)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(opts.formatter(cmd), ReplayResult{Sessions: []ReplaySessionResult{}, AllOK: true})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found in journal.")
		return nil
	}

	result := ReplayResult{
		Sessions:      make([]ReplaySessionResult, 0, len(ids)),
		TotalSessions: len(ids),
		AllOK:         true,
	}
	for _, id := range ids {
		report, err := j.Replay(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", id), err)
		}
		sr := ReplaySessionResult{
			Session:    report.Session,
			Mutations:  report.Mutations,
			Gaps:       report.Gaps,
			Mismatches: report.Mismatches,
			Diverged:   report.Diverged,
			OK:         report.OK(),
		}
		if sr.Mismatches == nil {
			sr.Mismatches = []journal.Mismatch{}
		}
		result.Sessions = append(result.Sessions, sr)
		if !sr.OK {
			result.AllOK = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(opts.formatter(cmd), result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// sessionsToReplay picks the sessions named by the flags. Empty sessions
// are skipped when replaying everything.
func sessionsToReplay(ctx context.Context, j *journal.Journal, opts *ReplayOptions) ([]string, error) {
	if opts.Session != "" {
		return []string{opts.Session}, nil
	}

	if !opts.All {
		id, err := j.Latest(ctx)
		if errors.Is(err, journal.ErrNoSessions) {
			return nil, nil
		}
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to find latest session", err)
		}
		return []string{id}, nil
	}

	infos, err := j.Sessions(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to list sessions", err)
	}
	var ids []string
	for _, info := range infos {
		if info.Mutations > 0 {
			ids = append(ids, info.ID)
		}
	}
	return ids, nil
}

func outputReplayJSON(out *OutputFormatter, result ReplayResult) error {
	if err := out.Report(result.AllOK, result, "E_REPLAY", "replay verification failed"); err != nil {
		return err
	}
	if !result.AllOK {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "✓"
		if !s.OK {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Session: %s\n", status, s.Session)
		fmt.Fprintf(w, "  Mutations: %d\n", s.Mutations)
		if s.Gaps > 0 {
			fmt.Fprintf(w, "  Gaps: %d (journal writes lost)\n", s.Gaps)
		}
		if s.Diverged {
			fmt.Fprintln(w, "  Warning: two replays of this session disagree!")
		}
		if len(s.Mismatches) > 0 {
			fmt.Fprintf(w, "  Mismatches: %d\n", len(s.Mismatches))
			for i, m := range s.Mismatches {
				if !verbose && i == 3 {
					fmt.Fprintf(w, "    ... %d more (use --verbose)\n", len(s.Mismatches)-i)
					break
				}
				fmt.Fprintf(w, "    #%d %s: recorded %s, replayed %s\n", m.Seq, m.Mutation, m.Recorded, m.Replayed)
			}
		}
		fmt.Fprintln(w)
	}

	if result.AllOK {
		fmt.Fprintln(w, "✓ All sessions replay as recorded")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay verification failed")
	return NewExitError(ExitFailure, "replay verification failed")
}
