package ingest

import "castsync/internal/itemstore"

// State is the pipeline position an item reached.
type State string

const (
	StateDiscovered           State = "discovered"
	StateTitleFiltered        State = "title_filtered"
	StateMetadataGenerated    State = "metadata_generated"
	StateMediaDecided         State = "media_decided"
	StatePublished            State = "published"
	StateSkippedFriendlyFalse State = "skipped_not_friendly"
	StateSkippedTitleMismatch State = "skipped_title_mismatch"
	StateFailed               State = "failed"
	StateSkipped              State = "skipped"
	StateDeferred             State = "deferred"
)

// Outcome groups final states by what happened to the durable store.
type Outcome string

const (
	// OutcomeProcessed means a terminal record was written.
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeFailed    Outcome = "failed"
)

// Reason codes.
const (
	ReasonAlreadyExists      = "already_exists"
	ReasonTitleMismatch      = "title_mismatch"
	ReasonStillRejected      = "still_rejected"
	ReasonNotPodcastFriendly = "not_podcast_friendly"
	ReasonDailyLimit         = "daily_limit"
	ReasonPeriodicLimit      = "periodic_limit"
	ReasonAIDailyLimit       = "ai_daily_limit"
	ReasonAIPeriodicLimit    = "ai_periodic_limit"
	ReasonAIRateLimited      = "ai_rate_limited"
	ReasonGenerationFailed   = "generation_failed"
	ReasonPipelineFailure    = "pipeline_failure"
	ReasonPublished          = "published"
)

// Candidate is an item as discovered by a lister.
type Candidate struct {
	ID    string
	URL   string
	Title string
}

// Result describes how one Run ended.
type Result struct {
	ItemID  string
	State   State
	Outcome Outcome
	Reason  string
	// Halt asks the caller to stop processing the current source.
	Halt bool
	Err  error
	// Record is the persisted record for processed outcomes.
	Record *itemstore.Record
}

// Persisted reports whether the run wrote a terminal record.
func (r Result) Persisted() bool { return r.Outcome == OutcomeProcessed }

func skipped(id, reason string) Result {
	return Result{ItemID: id, State: StateSkipped, Outcome: OutcomeSkipped, Reason: reason}
}

func deferred(id, reason string, halt bool) Result {
	return Result{ItemID: id, State: StateDeferred, Outcome: OutcomeDeferred, Reason: reason, Halt: halt}
}

func failed(id, reason string, err error, halt bool) Result {
	return Result{ItemID: id, State: StateFailed, Outcome: OutcomeFailed, Reason: reason, Err: err, Halt: halt}
}

func processed(state State, reason string, rec itemstore.Record) Result {
	return Result{ItemID: rec.ID, State: state, Outcome: OutcomeProcessed, Reason: reason, Record: &rec}
}
