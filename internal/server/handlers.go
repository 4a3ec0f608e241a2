package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"castsync/internal/logging"
	"castsync/internal/runlock"
	"castsync/internal/workflow"
)

type response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type sourceView struct {
	ID         string `json:"id"`
	Listed     int    `json:"listed"`
	Published  int    `json:"published"`
	Skipped    int    `json:"skipped"`
	Deferred   int    `json:"deferred"`
	Failed     int    `json:"failed"`
	Halted     bool   `json:"halted,omitempty"`
	HaltReason string `json:"halt_reason,omitempty"`
	FeedItems  int    `json:"feed_items"`
	Error      string `json:"error,omitempty"`
}

type runView struct {
	RunID      string       `json:"run_id"`
	Kind       string       `json:"kind"`
	Started    time.Time    `json:"started"`
	DurationMS int64        `json:"duration_ms"`
	Published  int          `json:"published"`
	Failed     int          `json:"failed"`
	Sources    []sourceView `json:"sources"`
}

type statusView struct {
	Running bool     `json:"running"`
	Kind    string   `json:"kind,omitempty"`
	LastRun *runView `json:"last_run,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"}, s.logger)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.opts.Runner.Status()
	view := statusView{Running: st.Running || s.busy.Load(), Kind: st.Kind}
	if st.LastRun != nil {
		view.LastRun = newRunView(*st.LastRun)
	}
	writeJSON(w, http.StatusOK, view, s.logger)
}

func (s *Server) handleTrigger(kind, busyMessage, acceptedMessage string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.Trigger(kind, sourceFilter(r))
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, response{Status: "accepted", Message: acceptedMessage}, s.logger)
		case errors.Is(err, runlock.ErrBusy):
			writeJSON(w, http.StatusTooManyRequests, response{Status: "error", Message: busyMessage}, s.logger)
		default:
			logging.ErrorWithContext(s.logger, "trigger failed", "trigger_rejected",
				logging.String("kind", kind),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the state directory is writable"),
			)
			writeJSON(w, http.StatusInternalServerError, response{Status: "error", Message: err.Error()}, s.logger)
		}
	}
}

// sourceFilter reads repeated or comma-separated ?source= values.
func sourceFilter(r *http.Request) []string {
	var ids []string
	for _, value := range r.URL.Query()["source"] {
		for part := range strings.SplitSeq(value, ",") {
			if id := strings.TrimSpace(part); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func newRunView(summary workflow.RunSummary) *runView {
	view := &runView{
		RunID:      summary.RunID,
		Kind:       summary.Kind,
		Started:    summary.Started,
		DurationMS: summary.Duration.Milliseconds(),
		Published:  summary.Published(),
		Failed:     summary.Failed(),
		Sources:    make([]sourceView, 0, len(summary.Sources)),
	}
	for _, src := range summary.Sources {
		sv := sourceView{
			ID:         src.SourceID,
			Listed:     src.Listed,
			Published:  src.Published,
			Skipped:    src.Skipped,
			Deferred:   src.Deferred,
			Failed:     src.Failed,
			Halted:     src.Halted,
			HaltReason: src.HaltReason,
			FeedItems:  src.Feed.Published,
		}
		if err := errors.Join(src.Err, src.FeedErr); err != nil {
			sv.Error = err.Error()
		}
		view.Sources = append(view.Sources, sv)
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}
