package workflow

import (
	"time"

	"castsync/internal/feed"
	"castsync/internal/ingest"
)

// Pass kinds.
const (
	KindSync    = "sync"
	KindRefresh = "refresh"
)

// SourceReport summarizes one source within a pass.
type SourceReport struct {
	SourceID   string
	Listed     int
	Duplicates int
	ListErrors int
	Published  int
	Persisted  int
	Skipped    int
	Deferred   int
	Failed     int
	Halted     bool
	HaltReason string
	Feed       feed.Report
	FeedErr    error
	// Err is set when the source could not be processed at all.
	Err error
}

func (r *SourceReport) record(res ingest.Result) {
	switch res.Outcome {
	case ingest.OutcomeProcessed:
		r.Persisted++
		if res.State == ingest.StatePublished {
			r.Published++
		} else {
			r.Skipped++
		}
	case ingest.OutcomeSkipped:
		r.Skipped++
	case ingest.OutcomeDeferred:
		r.Deferred++
	case ingest.OutcomeFailed:
		r.Failed++
	}
	if res.Halt {
		r.Halted = true
		r.HaltReason = res.Reason
	}
}

// RunSummary describes a whole pass.
type RunSummary struct {
	RunID    string
	Kind     string
	Started  time.Time
	Duration time.Duration
	Sources  []SourceReport
}

// Published totals published items across sources.
func (s RunSummary) Published() int {
	total := 0
	for _, src := range s.Sources {
		total += src.Published
	}
	return total
}

// Failed totals failed items, source errors and feed errors.
func (s RunSummary) Failed() int {
	total := 0
	for _, src := range s.Sources {
		total += src.Failed
		if src.Err != nil || src.FeedErr != nil {
			total++
		}
	}
	return total
}
