package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"castsync/internal/logging"
	"castsync/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and reclaim per-item staging workspaces",
	}
	cmd.AddCommand(newStagingListCommand(ctx), newStagingCleanCommand(ctx))
	return cmd
}

type workspaceJSON struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Modified  time.Time `json:"modified"`
	SizeBytes int64     `json:"size_bytes"`
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staging workspaces with their age and size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := staging.ListDirectories(cfg.Paths.StagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}

			var total int64
			views := make([]workspaceJSON, 0, len(dirs))
			rows := make([][]string, 0, len(dirs))
			for _, d := range dirs {
				total += d.Size
				views = append(views, workspaceJSON{Name: d.Name, Path: d.Path, Modified: d.ModTime, SizeBytes: d.Size})
				rows = append(rows, []string{d.Name, formatAge(time.Since(d.ModTime)), logging.FormatBytes(d.Size)})
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"staging_dir":      cfg.Paths.StagingDir,
					"workspaces":       views,
					"total_size_bytes": total,
				})
			}
			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintf(out, "No staging workspaces in %s\n", cfg.Paths.StagingDir)
				return nil
			}
			fmt.Fprintf(out, "Staging directory: %s\n\n", cfg.Paths.StagingDir)
			fmt.Fprint(out, renderTable([]string{"Workspace", "Age", "Size"}, rows, 1, 2))
			fmt.Fprintf(out, "\nTotal: %d workspaces, %s\n", len(dirs), logging.FormatBytes(total))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove workspaces left behind by interrupted passes",
		Long: `Remove staging workspaces older than workflow.staging_max_age_hours.

--all removes every workspace regardless of age. Do not use it while a
sync is running.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			label := "stale"
			var result staging.CleanResult
			if all {
				label = "staging"
				result = staging.CleanAll(cmd.Context(), cfg.Paths.StagingDir, ctx.logger())
			} else {
				result = staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, cfg.StagingMaxAge(), ctx.logger())
			}

			problems := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				problems = append(problems, fmt.Sprintf("%s: %v", e.Path, e.Error))
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"removed":     result.Removed,
					"freed_bytes": result.Freed,
					"errors":      problems,
				})
			}

			out := cmd.OutOrStdout()
			switch {
			case len(result.Removed) == 0 && len(problems) == 0:
				fmt.Fprintf(out, "No %s workspaces to clean\n", label)
			default:
				fmt.Fprintf(out, "Removed %d %s workspaces (%s freed)\n", len(result.Removed), label, logging.FormatBytes(result.Freed))
			}
			for _, p := range problems {
				fmt.Fprintf(out, "  error: %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every workspace regardless of age")
	return cmd
}

// formatAge renders d in the largest whole unit: minutes, hours or days.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
