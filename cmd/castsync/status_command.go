package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"castsync/internal/app"
	"castsync/internal/deps"
	"castsync/internal/preflight"
	"castsync/internal/runlock"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show environment, storage and dependency health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				cfg := a.Config
				pid, daemonAlive := daemonPID(cfg.Paths.LogDir)
				syncRunning, lockErr := runlock.Held(cfg.LockPath())
				storeResult := preflight.CheckStore(cmd.Context(), a.Objects)
				llmResult := preflight.CheckLLMFromConfig(cmd.Context(), cfg, a.Sources.All())
				notifyResult := preflight.CheckNotificationsFromConfig(cfg)
				depStatuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
				failures := a.Sources.Failures()

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{
						"config_path":     ctx.configPath,
						"daemon_running":  daemonAlive,
						"daemon_pid":      pid,
						"sync_running":    syncRunning,
						"storage_backend": cfg.Storage.Backend,
						"storage":         storeResult,
						"metadata_llm":    llmResult,
						"notifications":   notifyResult,
						"sources":         len(a.Sources.All()),
						"invalid_sources": len(failures),
						"dependencies":    depStatuses,
						"missing":         len(deps.Missing(depStatuses)),
					})
				}

				colorize := shouldColorize(cmd.OutOrStdout())
				var lines []string
				lines = append(lines, renderSectionHeader("castsync", colorize)...)
				lines = append(lines, renderStatusLine("Config", statusInfo, ctx.configPath, colorize))
				switch {
				case daemonAlive:
					lines = append(lines, renderStatusLine("Daemon", statusOK, "Running (pid "+strconv.Itoa(pid)+")", colorize))
				default:
					lines = append(lines, renderStatusLine("Daemon", statusInfo, "Not running", colorize))
				}
				switch {
				case lockErr != nil:
					lines = append(lines, renderStatusLine("Sync", statusWarn, lockErr.Error(), colorize))
				case syncRunning:
					lines = append(lines, renderStatusLine("Sync", statusOK, "In progress", colorize))
				default:
					lines = append(lines, renderStatusLine("Sync", statusInfo, "Idle", colorize))
				}

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Storage", colorize)...)
				lines = append(lines, renderStatusLine("Backend", statusInfo, cfg.Storage.Backend, colorize))
				lines = append(lines, renderStatusLine("Public URL", statusInfo, cfg.PublicBaseURL(), colorize))
				lines = append(lines, resultStatusLine(storeResult, statusError, colorize))

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Directories", colorize)...)
				lines = append(lines, directoryStatusLine("Staging", cfg.Paths.StagingDir, colorize))
				lines = append(lines, directoryStatusLine("State", cfg.Paths.StateDir, colorize))
				lines = append(lines, directoryStatusLine("Logs", cfg.Paths.LogDir, colorize))
				if cfg.Workflow.MinFreeSpaceMB > 0 {
					space := preflight.CheckFreeSpace("Free space", cfg.Paths.StagingDir, uint64(cfg.Workflow.MinFreeSpaceMB))
					lines = append(lines, resultStatusLine(space, statusWarn, colorize))
				}

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Sources", colorize)...)
				sourceKind := statusOK
				if len(a.Sources.All()) == 0 {
					sourceKind = statusWarn
				}
				lines = append(lines, renderStatusLine("Loaded", sourceKind, fmt.Sprintf("%d from %s", len(a.Sources.All()), cfg.Paths.SourcesDir), colorize))
				for _, failure := range failures {
					lines = append(lines, renderStatusLine("Invalid", statusError, failure.Error(), colorize))
				}

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Services", colorize)...)
				lines = append(lines, resultStatusLine(llmResult, statusWarn, colorize))
				lines = append(lines, resultStatusLine(notifyResult, statusWarn, colorize))

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
				lines = append(lines, dependencyLines(depStatuses, colorize)...)

				out := cmd.OutOrStdout()
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}
