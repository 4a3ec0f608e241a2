package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"castsync/internal/daemonrun"
	"castsync/internal/deps"
	"castsync/internal/preflight"
)

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+2)
	missing := deps.Missing(statuses)
	summaryKind, summary := statusOK, "All required dependencies available"
	if len(missing) > 0 {
		summaryKind = statusError
		summary = fmt.Sprintf("%d required dependencies missing", len(missing))
	}
	lines = append(lines, renderStatusLine("Summary", summaryKind, summary, colorize))

	var names []string
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = dep.Version
			}
			if dep.Command != "" {
				message = fmt.Sprintf("%s (command: %s)", message, dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		names = append(names, dep.Name)
	}
	if len(names) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, fmt.Sprintf("%s (see README.md for install steps)", strings.Join(names, ", ")), colorize))
	}
	return lines
}

func directoryStatusLine(label, path string, colorize bool) string {
	result := preflight.CheckDirectoryAccess(label, path)
	if result.Passed {
		return renderStatusLine(label, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(label, statusError, result.Detail, colorize)
}

// resultStatusLine renders a preflight result, using failKind when it did
// not pass.
func resultStatusLine(result preflight.Result, failKind statusKind, colorize bool) string {
	if result.Passed {
		kind := statusOK
		if result.Detail == "Disabled" {
			kind = statusInfo
		}
		return renderStatusLine(result.Name, kind, result.Detail, colorize)
	}
	return renderStatusLine(result.Name, failKind, result.Detail, colorize)
}

// daemonPID reads the pid file the daemon writes to the log directory and
// reports whether that process still exists.
func daemonPID(logDir string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(logDir, daemonrun.PIDFileName))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if _, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid))); err != nil {
		return pid, false
	}
	return pid, true
}
