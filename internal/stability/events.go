package stability

import "time"

// EventType tags the Kafka events emitted during a run.
type EventType string

const (
	EventSampleScored  EventType = "sample_scored"
	EventSampleSkipped EventType = "sample_skipped"
	EventRunFinished   EventType = "run_finished"
)

// Skip reasons carried on sample_skipped events.
const (
	ReasonExplanationFailed   = "explanation_failed"
	ReasonUndefinedSimilarity = "undefined_similarity"
)

// SampleOutcome is published once per evaluated sample.
type SampleOutcome struct {
	Type         EventType `json:"type"`
	RunID        string    `json:"run_id"`
	ClassifierID string    `json:"classifier_id"`
	Method       string    `json:"method"`
	SampleID     string    `json:"sample_id"`
	Score        *float64  `json:"score,omitempty"`
	SkipReason   string    `json:"skip_reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunFinished is published when a run reaches a terminal state.
type RunFinished struct {
	Type         EventType `json:"type"`
	RunID        string    `json:"run_id"`
	ClassifierID string    `json:"classifier_id"`
	Method       string    `json:"method"`
	State        string    `json:"state"`
	Scored       int       `json:"scored"`
	Skipped      int       `json:"skipped"`
	Mean         *float64  `json:"mean,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
