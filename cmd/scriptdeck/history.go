package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/musher-dev/scriptdeck/internal/ansi"
	"github.com/musher-dev/scriptdeck/internal/config"
	clierrors "github.com/musher-dev/scriptdeck/internal/errors"
	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/journal"
	"github.com/musher-dev/scriptdeck/internal/output"
)

// followInterval is how often replay --follow polls an open journal.
const followInterval = 250 * time.Millisecond

// RunInfo is the JSON shape of a run record.
type RunInfo struct {
	ID         int64          `json:"id"`
	ScriptID   int64          `json:"scriptId"`
	Status     history.Status `json:"status"`
	ExitCode   *int           `json:"exitCode,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	DurationMS int64          `json:"durationMs"`
	Output     string         `json:"output,omitempty"`
}

func newRunInfo(r *history.RunRecord) RunInfo {
	return RunInfo{
		ID:         r.ID,
		ScriptID:   r.ScriptID,
		Status:     r.Status,
		ExitCode:   r.ExitCode,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
	}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long:  `List, inspect, replay, and clean up the recorded runs of registered scripts.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryReplayCmd())
	cmd.AddCommand(newHistoryClearCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <script-id>",
		Short: "List a script's recent runs",
		Long:  `List a script's runs, newest first, with status, exit code, and duration.`,
		Example: `  scriptdeck history list 3
  scriptdeck history list 3 --limit 10 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			id, err := parseID("script", args[0])
			if err != nil {
				return err
			}

			cfg, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := lookupScript(cmd.Context(), store, id); err != nil {
				return err
			}

			if limit <= 0 {
				limit = cfg.HistoryLimit()
			}

			runs, err := store.ListRuns(cmd.Context(), id, limit)
			if err != nil {
				return clierrors.DatabaseFailed(err)
			}

			infos := make([]RunInfo, 0, len(runs))
			for i := range runs {
				infos = append(infos, newRunInfo(&runs[i]))
			}

			if out.JSON {
				return out.PrintJSON(infos)
			}

			if len(infos) == 0 {
				out.Muted("No runs recorded for script %d.", id)
				return nil
			}

			table := output.NewTable("RUN", "STATUS", "EXIT", "STARTED", "DURATION")

			for _, info := range infos {
				exit := "-"
				if info.ExitCode != nil {
					exit = strconv.Itoa(*info.ExitCode)
				}

				duration := "-"
				if info.FinishedAt != nil {
					duration = output.FormatDuration(time.Duration(info.DurationMS) * time.Millisecond)
				}

				table.AddRow(
					strconv.FormatInt(info.ID, 10),
					out.RunStatus(string(info.Status)),
					exit,
					info.StartedAt.Local().Format(time.DateTime),
					duration,
				)
			}

			return out.Table(table)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum runs to list (default: history.limit)")

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its transcript",
		Long: `Show one run's outcome and its stored plain-text transcript. Use
'history replay' to see the raw output with colors.`,
		Example: `  scriptdeck history show 17
  scriptdeck history show 17 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			id, err := parseID("run", args[0])
			if err != nil {
				return err
			}

			_, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := lookupRun(cmd.Context(), store, id)
			if err != nil {
				return err
			}

			info := newRunInfo(run)
			info.Output = run.Output

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("Run %d of script %d: %s\n", info.ID, info.ScriptID, out.RunStatus(string(info.Status)))
			out.Print("  Started:  %s\n", info.StartedAt.Local().Format(time.DateTime))

			if info.FinishedAt != nil {
				out.Print("  Finished: %s (%s)\n", info.FinishedAt.Local().Format(time.DateTime),
					output.FormatDuration(run.Duration()))
			}

			if info.ExitCode != nil {
				out.Print("  Exit:     %d\n", *info.ExitCode)
			}

			out.Println()

			if run.Output == "" {
				out.Muted("(no output)")
				return nil
			}

			out.Print("%s", run.Output)

			if run.Output[len(run.Output)-1] != '\n' {
				out.Println()
			}

			return nil
		},
	}
}

func newHistoryReplayCmd() *cobra.Command {
	var (
		follow bool
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "replay <run-id>",
		Short: "Replay a run's raw output",
		Long: `Write a run's recorded output byte for byte, escape sequences included, so
colors and cursor movement look as they did live. With --follow, a run still
in progress is streamed until it finishes.`,
		Example: `  scriptdeck history replay 17
  scriptdeck history replay 17 --follow
  scriptdeck history replay 17 --plain > run-17.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			id, err := parseID("run", args[0])
			if err != nil {
				return err
			}

			dir := config.Load().JournalDir()

			session, err := journal.FindRun(dir, id)
			if err != nil {
				if errors.Is(err, journal.ErrSessionNotFound) {
					return (&clierrors.CLIError{
						Message: fmt.Sprintf("No raw output recorded for run %d", id),
						Code:    clierrors.ExitNotFound,
					}).WithHint("Use 'scriptdeck history show' for the stored transcript")
				}

				return clierrors.Wrap(clierrors.ExitGeneral, "Failed to read the output journal", err)
			}

			write := replayWriter(out, plain)

			if !session.Open() || !follow {
				events, err := journal.ReadEvents(dir, session.SessionID)
				if err != nil {
					return clierrors.Wrap(clierrors.ExitGeneral, "Failed to read the output journal", err)
				}

				for _, ev := range events {
					write(ev.Raw)
				}

				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return followSession(ctx, dir, session, write)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming while the run is in progress")
	cmd.Flags().BoolVar(&plain, "plain", false, "Strip escape sequences and control characters")

	return cmd
}

func replayWriter(out *output.Writer, plain bool) func([]byte) {
	if !plain {
		return out.Raw
	}

	var stripper ansi.Stripper

	return func(p []byte) {
		if text := stripper.Append(nil, p); len(text) > 0 {
			out.Raw(text)
		}
	}
}

// followSession streams an open session's live file until the session
// closes and every event written before the close has been read.
func followSession(ctx context.Context, dir string, session *journal.Session, write func([]byte)) error {
	var offset int64

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	for {
		// Check for the close first so the final read sees every event.
		current, err := journal.Reload(session)
		if err != nil {
			return clierrors.Wrap(clierrors.ExitGeneral, "Failed to read the output journal", err)
		}

		events, next, err := journal.ReadLiveEventsFrom(dir, session.SessionID, offset)
		if err != nil {
			return clierrors.Wrap(clierrors.ExitGeneral, "Failed to read the output journal", err)
		}

		offset = next

		for _, ev := range events {
			write(ev.Raw)
		}

		if !current.Open() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <script-id>",
		Short: "Delete a script's finished runs",
		Long: `Delete every finished run of a script along with its raw output journal. A
run still in progress is kept.`,
		Example: `  scriptdeck history clear 3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			id, err := parseID("script", args[0])
			if err != nil {
				return err
			}

			cfg, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := lookupScript(cmd.Context(), store, id); err != nil {
				return err
			}

			runs, err := store.ListRuns(cmd.Context(), id, math.MaxInt32)
			if err != nil {
				return clierrors.DatabaseFailed(err)
			}

			finished := make([]history.RunRecord, 0, len(runs))
			for _, r := range runs {
				if r.Status.Terminal() {
					finished = append(finished, r)
				}
			}

			removed, err := store.ClearRuns(cmd.Context(), id)
			if err != nil {
				return clierrors.DatabaseFailed(err)
			}

			removeJournals(out, cfg, runIDs(finished))

			out.Success("Cleared %d run(s) of script %d", removed, id)

			return nil
		},
	}
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete raw output journals older than a duration",
		Long: `Delete raw output journals older than the retention window (history.retention,
default 720h). Run records and their plain-text transcripts are kept.`,
		Example: `  scriptdeck history prune
  scriptdeck history prune --older-than 168h`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			window := cfg.HistoryRetention()
			if olderThan != "" {
				d, err := time.ParseDuration(olderThan)
				if err != nil || d <= 0 {
					return (&clierrors.CLIError{
						Message: fmt.Sprintf("Invalid duration for --older-than: %q", olderThan),
						Code:    clierrors.ExitUsage,
					}).WithHint("Use a Go duration such as 72h or 30m")
				}

				window = d
			}

			removed, err := journal.PruneOlderThan(cfg.JournalDir(), time.Now().Add(-window))
			if err != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, "Failed to prune output journals", err)
			}

			out.Success("Removed %d journal session(s)", removed)

			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "Override retention window (example: 168h)")

	return cmd
}
