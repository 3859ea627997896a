package models

import "time"

// Verdict classifies one day's riding conditions.
type Verdict string

const (
	VerdictGood     Verdict = "good"
	VerdictMarginal Verdict = "marginal"
	VerdictPoor     Verdict = "poor"
)

// SuitabilityVerdict pairs a verdict with a human-readable rationale.
type SuitabilityVerdict struct {
	Verdict   Verdict
	Rationale string
}

// EmailMessage is a rendered digest ready for the mail transport.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// Outcome is the per-subscriber result of a dispatch run.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// DispatchResult records what happened for one subscriber in one run.
type DispatchResult struct {
	SubscriberID int
	Email        string
	Outcome      Outcome
	// Reason holds the skip reason or the failure kind (e.g. "upstream_unavailable").
	Reason string
	Err    error
}

// RunSummary aggregates one complete dispatch run.
type RunSummary struct {
	StartedAt time.Time
	Duration  time.Duration
	Sent      int
	Skipped   int
	Failed    int
	Failures  []DispatchResult
}

// Record folds a single result into the summary counters.
func (s *RunSummary) Record(r DispatchResult) {
	switch r.Outcome {
	case OutcomeSent:
		s.Sent++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
		s.Failures = append(s.Failures, r)
	}
}

// Total is the number of subscribers the run attempted.
func (s *RunSummary) Total() int {
	return s.Sent + s.Skipped + s.Failed
}
