package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"castsync/internal/app"
	"castsync/internal/feed"
	"castsync/internal/itemstore"
	"castsync/internal/logging"
	"castsync/internal/ratelimit"
	"castsync/internal/sources"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "items <source>",
		Short: "List stored completion records for a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				src, err := lookupSource(a, args[0])
				if err != nil {
					return err
				}
				store := itemstore.New(a.Objects, src.Prefix(), a.Logger)
				result, err := store.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("list records: %w", err)
				}
				records := result.Records
				slices.SortStableFunc(records, func(x, y itemstore.Record) int {
					xt, _ := feed.ParsePubDate(x.PubDate)
					yt, _ := feed.ParsePubDate(y.PubDate)
					return yt.Compare(xt)
				})
				if limit > 0 && len(records) > limit {
					records = records[:limit]
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{
						"source":     src.ID,
						"records":    records,
						"unreadable": len(result.Failures),
					})
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintf(out, "No records stored for %s\n", src.ID)
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.ID,
						recordState(rec),
						rec.PubDate,
						formatSeconds(rec.Duration),
						logging.FormatBytes(rec.LengthBytes),
						truncate(rec.Title, 60),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "State", "Published", "Duration", "Size", "Title"},
					rows,
					3, 4,
				))
				fmt.Fprintf(out, "\n%d records", len(records))
				if n := len(result.Failures); n > 0 {
					fmt.Fprintf(out, ", %d unreadable", n)
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many records (newest first)")
	return cmd
}

func newLimitsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show daily quota usage per source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				type limitRow struct {
					Source    string `json:"source"`
					Resource  string `json:"resource"`
					Quota     int    `json:"quota"`
					Used      int    `json:"used"`
					Remaining int    `json:"remaining"`
					LastUsed  string `json:"last_used,omitempty"`
				}
				var rows []limitRow
				for _, src := range a.Sources.All() {
					store := itemstore.New(a.Objects, src.Prefix(), a.Logger)
					gates := []*ratelimit.Gate{ratelimit.New(ratelimit.ResourceItems, src.Sync.MaxItemsPerDay, store)}
					if src.AI.Enabled {
						gates = append(gates, ratelimit.New(ratelimit.ResourceMetadata, src.AI.MaxCallsPerDay, store))
					}
					for _, gate := range gates {
						if err := gate.Load(cmd.Context()); err != nil {
							return fmt.Errorf("load %s limiter for %s: %w", gate.Resource(), src.ID, err)
						}
						state := gate.Snapshot()
						row := limitRow{
							Source:    src.ID,
							Resource:  gate.Resource(),
							Quota:     gate.Quota(),
							Used:      state.ConsumedToday,
							Remaining: gate.Remaining(),
						}
						if state.LastConsumedAt != nil {
							row.LastUsed = state.LastConsumedAt.UTC().Format(time.RFC3339)
						}
						rows = append(rows, row)
					}
				}
				if ctx.JSONMode() {
					if rows == nil {
						rows = []limitRow{}
					}
					return writeJSON(cmd, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sources configured")
					return nil
				}
				table := make([][]string, 0, len(rows))
				for _, row := range rows {
					table = append(table, []string{
						row.Source, row.Resource,
						strconv.Itoa(row.Used), strconv.Itoa(row.Quota), strconv.Itoa(row.Remaining),
						row.LastUsed,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Source", "Resource", "Used", "Quota", "Remaining", "Last Used"},
					table,
					2, 3, 4,
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func lookupSource(a *app.App, id string) (sources.Source, error) {
	id = strings.TrimSpace(id)
	src, ok := a.Sources.Get(id)
	if !ok {
		return sources.Source{}, fmt.Errorf("unknown source %q", id)
	}
	return src, nil
}

func recordState(rec itemstore.Record) string {
	switch {
	case rec.Rejected():
		return "rejected"
	case rec.NotFriendly():
		return "not_friendly"
	case rec.Complete():
		return "published"
	default:
		return "pending"
	}
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

func truncate(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}
