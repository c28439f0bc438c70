package models

import "time"

// Record is the canonical flat unit the pipeline produces. Immutable once
// created; sentiment output is attached as a separate object keyed by ID.
type Record struct {
	ID                string    `json:"id"`
	Subreddit         string    `json:"subreddit"`
	Title             string    `json:"title"`
	BodyText          string    `json:"body_text"`
	Author            *string   `json:"author"` // nil when the source anonymized it
	CreatedAt         time.Time `json:"created_at"`
	Score             int64     `json:"score"`
	NumComments       int64     `json:"num_comments"`
	EngagementScore   float64   `json:"engagement_score"`
	ExtractionBatchID string    `json:"extraction_batch_id"`
}

// SkippedItem records one raw item that failed normalization.
type SkippedItem struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

type SentimentLabel string

const (
	LabelNegative SentimentLabel = "negative"
	LabelNeutral  SentimentLabel = "neutral"
	LabelPositive SentimentLabel = "positive"
)

// ModelScore is one model's normalized output for one record.
type ModelScore struct {
	Score float64        `json:"score"` // normalized to [-1, 1]
	Label SentimentLabel `json:"label"`
}

// SentimentScore is computed once per record per run and never mutated;
// re-scoring builds a fresh value.
type SentimentScore struct {
	ModelScores    map[string]ModelScore `json:"model_scores"`
	FailedModels   []string              `json:"failed_models,omitempty"`
	AggregateScore float64               `json:"aggregate_score"`
	AggregateLabel SentimentLabel        `json:"aggregate_label"`
}

type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// QualityReport is the whole-batch validation outcome. Plain data, assembled
// once by the validator.
type QualityReport struct {
	TotalRecords   int                `json:"total_records"`
	ValidRecords   int                `json:"valid_records"`
	InvalidRecords int                `json:"invalid_records"`
	RuleViolations map[string]int     `json:"rule_violations"`
	NullRates      map[string]float64 `json:"null_rates"`
	DuplicateCount int                `json:"duplicate_count"`
	Verdict        Verdict            `json:"verdict"`
	Errors         []string           `json:"errors,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
}

type RunState string

const (
	StateIdle        RunState = "idle"
	StateExtracting  RunState = "extracting"
	StateNormalizing RunState = "normalizing"
	StateValidating  RunState = "validating"
	StateScoring     RunState = "scoring"
	StateEmitting    RunState = "emitting"
	StateCompleted   RunState = "completed"
	StateFailed      RunState = "failed"
	StateCancelled   RunState = "cancelled"
)

// RunReport summarizes one end-to-end run. Every run yields one, whatever the
// outcome; only completed runs also yield a curated artifact.
type RunReport struct {
	BatchID       string              `json:"batch_id"`
	State         RunState            `json:"state"`
	FailedStage   RunState            `json:"failed_stage,omitempty"`
	FailureCause  string              `json:"failure_cause,omitempty"`
	Fetched       int                 `json:"fetched"`
	Normalized    int                 `json:"normalized"`
	Skipped       []SkippedItem       `json:"skipped,omitempty"`
	Deduplicated  int                 `json:"deduplicated"`
	Scored        int                 `json:"scored"`
	ScoringIssues map[string][]string `json:"scoring_issues,omitempty"` // record id -> notes
	Quality       *QualityReport      `json:"quality,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	Elapsed       time.Duration       `json:"elapsed"`
	ArtifactURI   string              `json:"artifact_uri,omitempty"`
}
