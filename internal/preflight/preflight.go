package preflight

import (
	"context"
	"fmt"
	"strings"

	"castsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks a pass cannot proceed without.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Workflow.MinFreeSpaceMB > 0 {
		results = append(results, CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, uint64(cfg.Workflow.MinFreeSpaceMB)))
	}
	for _, dep := range CheckSystemDeps(ctx, cfg) {
		if dep.Optional {
			continue
		}
		results = append(results, Result{Name: dep.Name, Passed: dep.Available, Detail: dep.Detail})
	}
	return results
}

// Failed returns a combined error for the failed results, or nil.
func Failed(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(failed, "; "))
}
