// Package errs defines the failure taxonomy shared by the pipeline stages.
// Item-level failures (normalization, per-record scoring) are collected into
// reports; run-level failures abort the run and carry enough detail for the
// external orchestrator to decide on a retry.
package errs

import "fmt"

// SourceUnavailableError means the source API stayed rate limited or
// unreachable after the retry budget was exhausted. It aborts extraction for
// one subreddit filter only; the orchestrator may retry the whole run.
type SourceUnavailableError struct {
	Subreddit string
	Attempts  int
	Err       error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable for r/%s after %d attempts: %v", e.Subreddit, e.Attempts, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// AuthenticationError is fatal for the whole run and never retried here.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("source authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NormalizationError records why a single raw item was skipped. It never
// aborts a batch.
type NormalizationError struct {
	ItemID string
	Reason string
}

func (e *NormalizationError) Error() string {
	if e.ItemID == "" {
		return e.Reason
	}
	return fmt.Sprintf("item %s: %s", e.ItemID, e.Reason)
}

// ScoringUnavailableError means every configured sentiment model failed for
// one record. The record keeps flowing; the condition lands in the report.
type ScoringUnavailableError struct {
	RecordID string
}

func (e *ScoringUnavailableError) Error() string {
	return fmt.Sprintf("no sentiment model produced a score for record %s", e.RecordID)
}

// UploadError wraps a blob storage failure. The core surfaces it unretried;
// the orchestrator owns upload retry policy.
type UploadError struct {
	Destination string
	Err         error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed: %v", e.Destination, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
