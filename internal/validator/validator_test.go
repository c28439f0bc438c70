package validator

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/lcampos/redditcurator/config"
	"github.com/lcampos/redditcurator/internal/models"
)

var fixedNow = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.ValidationConfig {
	return config.ValidationConfig{
		MaxNullRate:      map[string]float64{"id": 0, "subreddit": 0, "created_at": 0},
		MaxDuplicateRate: 0,
		MaxFutureSkew:    5 * time.Minute,
		MaxNegativeRate:  0.10,
	}
}

func newTestValidator(cfg config.ValidationConfig) *Validator {
	return New(cfg).WithClock(func() time.Time { return fixedNow })
}

func makeRecord(id string) models.Record {
	return models.Record{
		ID:          id,
		Subreddit:   "golang",
		Title:       "title",
		CreatedAt:   fixedNow.Add(-24 * time.Hour),
		Score:       10,
		NumComments: 3,
	}
}

func TestValidateCleanBatchPasses(t *testing.T) {
	v := newTestValidator(testConfig())

	batch := []models.Record{makeRecord("a"), makeRecord("b"), makeRecord("c")}
	report := v.Validate(batch)

	if report.Verdict != models.VerdictPass {
		t.Errorf("expected pass, got %s (errors: %v, warnings: %v)",
			report.Verdict, report.Errors, report.Warnings)
	}
	if report.ValidRecords != 3 || report.InvalidRecords != 0 {
		t.Errorf("expected 3 valid / 0 invalid, got %d/%d", report.ValidRecords, report.InvalidRecords)
	}
}

func TestValidateCountsEveryDuplicate(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDuplicateRate = 0.5 // high enough that duplicates alone do not fail
	v := newTestValidator(cfg)

	// 100 records where 10 are repeats of earlier ids.
	batch := make([]models.Record, 0, 100)
	for i := 0; i < 90; i++ {
		batch = append(batch, makeRecord(fmt.Sprintf("id-%d", i)))
	}
	for i := 0; i < 10; i++ {
		batch = append(batch, makeRecord(fmt.Sprintf("id-%d", i)))
	}

	report := v.Validate(batch)

	if report.DuplicateCount != 10 {
		t.Errorf("expected duplicate count 10, got %d", report.DuplicateCount)
	}
	if report.TotalRecords != 100 {
		t.Errorf("expected 100 total records, got %d", report.TotalRecords)
	}
}

func TestValidateDuplicateZeroToleranceFails(t *testing.T) {
	v := newTestValidator(testConfig())

	batch := []models.Record{makeRecord("a"), makeRecord("b"), makeRecord("a")}
	report := v.Validate(batch)

	if report.Verdict != models.VerdictFail {
		t.Errorf("expected fail with zero duplicate tolerance, got %s", report.Verdict)
	}
	if report.DuplicateCount != 1 {
		t.Errorf("expected duplicate count 1, got %d", report.DuplicateCount)
	}
}

func TestValidateFutureTimestampWarns(t *testing.T) {
	v := newTestValidator(testConfig())

	future := makeRecord("future")
	future.CreatedAt = fixedNow.Add(time.Hour)

	report := v.Validate([]models.Record{makeRecord("a"), future})

	if report.Verdict != models.VerdictWarn {
		t.Errorf("expected warn for future timestamp, got %s", report.Verdict)
	}
	if report.RuleViolations[RuleCreatedAtWindow] != 1 {
		t.Errorf("expected 1 window violation, got %d", report.RuleViolations[RuleCreatedAtWindow])
	}
	if report.InvalidRecords != 1 {
		t.Errorf("expected the flagged record counted invalid, got %d", report.InvalidRecords)
	}
}

func TestValidatePreEpochTimestampWarns(t *testing.T) {
	v := newTestValidator(testConfig())

	ancient := makeRecord("ancient")
	ancient.CreatedAt = time.Date(2004, time.January, 1, 0, 0, 0, 0, time.UTC)

	report := v.Validate([]models.Record{makeRecord("a"), ancient})

	if report.Verdict != models.VerdictWarn {
		t.Errorf("expected warn for pre-epoch timestamp, got %s", report.Verdict)
	}
}

func TestValidateNegativeCommentsWarns(t *testing.T) {
	v := newTestValidator(testConfig())

	bad := makeRecord("bad")
	bad.NumComments = -1

	report := v.Validate([]models.Record{makeRecord("a"), bad})

	if report.Verdict != models.VerdictWarn {
		t.Errorf("expected warn for negative comment count, got %s", report.Verdict)
	}
	if report.RuleViolations[RuleNegativeComment] != 1 {
		t.Errorf("expected 1 violation recorded, got %d", report.RuleViolations[RuleNegativeComment])
	}
}

func TestValidateNegativeScoreRateWarns(t *testing.T) {
	v := newTestValidator(testConfig())

	downvoted := makeRecord("downvoted")
	downvoted.Score = -5

	// 1 of 2 records negative: 50% > 10% threshold, but only a soft rule.
	report := v.Validate([]models.Record{makeRecord("a"), downvoted})

	if report.Verdict != models.VerdictWarn {
		t.Errorf("expected warn for negative score rate, got %s", report.Verdict)
	}
}

func TestValidateRecordsViolationCountsBelowThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.MaxNullRate["subreddit"] = 0.5
	v := newTestValidator(cfg)

	orphan := makeRecord("orphan")
	orphan.Subreddit = ""

	report := v.Validate([]models.Record{makeRecord("a"), makeRecord("b"), makeRecord("c"), orphan})

	if report.Verdict != models.VerdictPass {
		t.Errorf("expected pass below the null-rate threshold, got %s (errors: %v)", report.Verdict, report.Errors)
	}
	if report.RuleViolations[RuleRequiredFields] != 1 {
		t.Errorf("expected the null still counted in rule violations, got %d", report.RuleViolations[RuleRequiredFields])
	}
	if report.InvalidRecords != 1 {
		t.Errorf("expected the record flagged invalid, got %d", report.InvalidRecords)
	}
}

func TestValidateEmptyBatchFails(t *testing.T) {
	v := newTestValidator(testConfig())

	report := v.Validate(nil)
	if report.Verdict != models.VerdictFail {
		t.Errorf("expected fail for empty batch, got %s", report.Verdict)
	}
}

func TestValidateDeterministic(t *testing.T) {
	v := newTestValidator(testConfig())

	dup := makeRecord("a")
	future := makeRecord("future")
	future.CreatedAt = fixedNow.Add(time.Hour)
	batch := []models.Record{makeRecord("a"), dup, future, makeRecord("b")}

	first := v.Validate(batch)
	second := v.Validate(batch)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("validating the same batch twice produced different reports:\n%+v\n%+v", first, second)
	}
}
