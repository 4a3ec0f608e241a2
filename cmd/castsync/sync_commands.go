package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"castsync/internal/app"
	"castsync/internal/runlock"
	"castsync/internal/workflow"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var sourceIDs []string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest new items and republish feeds",
		Long: `Run one sync pass: list every enabled source, ingest items that have no
completion record yet, then regenerate each source's feed.

Use --source to restrict the pass to specific sources.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, ctx, workflow.KindSync, sourceIDs)
		},
	}
	cmd.Flags().StringSliceVarP(&sourceIDs, "source", "s", nil, "Limit the pass to these source IDs")
	return cmd
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var sourceIDs []string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Regenerate feeds from stored records without ingesting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, ctx, workflow.KindRefresh, sourceIDs)
		},
	}
	cmd.Flags().StringSliceVarP(&sourceIDs, "source", "s", nil, "Limit the refresh to these source IDs")
	return cmd
}

func runPass(cmd *cobra.Command, ctx *commandContext, kind string, filter []string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		if errors.Is(err, runlock.ErrBusy) {
			return fmt.Errorf("another sync is already running (lock %s)", cfg.LockPath())
		}
		return err
	}
	defer lock.Release()

	return ctx.withApp(cmd, func(a *app.App) error {
		if kind == workflow.KindSync {
			if err := a.Preflight(cmd.Context()); err != nil {
				return err
			}
		}
		var summary workflow.RunSummary
		if kind == workflow.KindSync {
			summary, err = a.Orchestrator.Sync(cmd.Context(), filter)
		} else {
			summary, err = a.Orchestrator.Refresh(cmd.Context(), filter)
		}
		if err != nil {
			return err
		}
		if ctx.JSONMode() {
			return writeJSON(cmd, summaryJSON(summary))
		}
		printSummary(cmd.OutOrStdout(), summary)
		if failed := summary.Failed(); failed > 0 {
			return fmt.Errorf("%s finished with %d failures", kind, failed)
		}
		return nil
	})
}

func printSummary(out io.Writer, summary workflow.RunSummary) {
	rows := make([][]string, 0, len(summary.Sources))
	for _, src := range summary.Sources {
		rows = append(rows, []string{
			src.SourceID,
			strconv.Itoa(src.Listed),
			strconv.Itoa(src.Published),
			strconv.Itoa(src.Skipped),
			strconv.Itoa(src.Deferred),
			strconv.Itoa(src.Failed),
			strconv.Itoa(src.Feed.Published),
			sourceNote(src),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Source", "Listed", "Published", "Skipped", "Deferred", "Failed", "Feed", "Note"},
		rows,
		1, 2, 3, 4, 5, 6,
	))
	fmt.Fprintf(out, "\n%s %s finished in %s: %d published, %d failed\n",
		summary.Kind, summary.RunID, summary.Duration.Round(time.Millisecond), summary.Published(), summary.Failed())
}

func sourceNote(src workflow.SourceReport) string {
	switch {
	case src.Err != nil:
		return src.Err.Error()
	case src.FeedErr != nil:
		return "feed: " + src.FeedErr.Error()
	case src.Halted:
		return "halted: " + src.HaltReason
	case src.ListErrors > 0:
		return fmt.Sprintf("%d listing errors", src.ListErrors)
	default:
		return ""
	}
}

type sourceSummaryJSON struct {
	ID         string `json:"id"`
	Listed     int    `json:"listed"`
	Published  int    `json:"published"`
	Skipped    int    `json:"skipped"`
	Deferred   int    `json:"deferred"`
	Failed     int    `json:"failed"`
	ListErrors int    `json:"list_errors,omitempty"`
	Halted     bool   `json:"halted,omitempty"`
	HaltReason string `json:"halt_reason,omitempty"`
	FeedKey    string `json:"feed_key,omitempty"`
	FeedItems  int    `json:"feed_items"`
	Error      string `json:"error,omitempty"`
	FeedError  string `json:"feed_error,omitempty"`
}

type runSummaryJSON struct {
	RunID      string              `json:"run_id"`
	Kind       string              `json:"kind"`
	Started    time.Time           `json:"started"`
	DurationMS int64               `json:"duration_ms"`
	Published  int                 `json:"published"`
	Failed     int                 `json:"failed"`
	Sources    []sourceSummaryJSON `json:"sources"`
}

func summaryJSON(summary workflow.RunSummary) runSummaryJSON {
	out := runSummaryJSON{
		RunID:      summary.RunID,
		Kind:       summary.Kind,
		Started:    summary.Started,
		DurationMS: summary.Duration.Milliseconds(),
		Published:  summary.Published(),
		Failed:     summary.Failed(),
		Sources:    make([]sourceSummaryJSON, 0, len(summary.Sources)),
	}
	for _, src := range summary.Sources {
		entry := sourceSummaryJSON{
			ID:         src.SourceID,
			Listed:     src.Listed,
			Published:  src.Published,
			Skipped:    src.Skipped,
			Deferred:   src.Deferred,
			Failed:     src.Failed,
			ListErrors: src.ListErrors,
			Halted:     src.Halted,
			HaltReason: src.HaltReason,
			FeedKey:    src.Feed.Key,
			FeedItems:  src.Feed.Published,
		}
		if src.Err != nil {
			entry.Error = src.Err.Error()
		}
		if src.FeedErr != nil {
			entry.FeedError = src.FeedErr.Error()
		}
		out.Sources = append(out.Sources, entry)
	}
	return out
}
