package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Run stages, in the order a target normally passes through them.
const (
	StageRunStart         Stage = "RUN_START"
	StageTargetEnqueued   Stage = "TARGET_ENQUEUED"
	StageFetchStart       Stage = "FETCH_START"
	StageFetchRetry       Stage = "FETCH_RETRY"
	StageFetchDone        Stage = "FETCH_DONE"
	StageTargetFailed     Stage = "TARGET_FAILED"
	StagePageSkipped      Stage = "PAGE_SKIPPED"
	StageRecordsExtracted Stage = "RECORDS_EXTRACTED"
	StageRecordAdded      Stage = "RECORD_ADDED"
	StageRunDone          Stage = "RUN_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event is one progress milestone of a run.
type Event struct {
	RunID uuid.UUID
	TS    time.Time
	Stage Stage
	// Host scopes target-level events.
	Host string
	URL  string
	// Attempt is the 1-based fetch attempt for fetch stages.
	Attempt     int
	StatusClass StatusClass
	Bytes       int64
	// Count carries the number of records for RECORDS_EXTRACTED.
	Count int
	Dur   time.Duration
	// Reason is a short failure class ("blocked", "network", "robots", ...).
	Reason string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageTargetEnqueued, StageFetchStart, StageFetchRetry, StageTargetFailed,
		StagePageSkipped, StageRecordsExtracted, StageRecordAdded:
		if e.Host == "" {
			return fmt.Errorf("%s requires host", e.Stage)
		}
	case StageFetchDone:
		if e.Host == "" {
			return errors.New("fetch done requires host")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
