// Package validator runs whole-batch quality rules over normalized records.
// Every rule is evaluated over the entire batch so the report reflects every
// violation, not just the first one found.
package validator

import (
	"fmt"
	"time"

	"github.com/lcampos/redditcurator/config"
	"github.com/lcampos/redditcurator/internal/models"
)

// Reddit launched 2005-06-23; no valid post predates it.
var sourceEpoch = time.Date(2005, time.June, 23, 0, 0, 0, 0, time.UTC)

const (
	RuleRequiredFields  = "required_field_null_rate"
	RuleDuplicateIDs    = "duplicate_id_rate"
	RuleCreatedAtWindow = "created_at_window"
	RuleNegativeScore   = "negative_score_rate"
	RuleNegativeComment = "negative_num_comments"
)

var requiredFields = []string{"id", "subreddit", "created_at"}

type Validator struct {
	cfg config.ValidationConfig
	now func() time.Time
}

func New(cfg config.ValidationConfig) *Validator {
	return &Validator{cfg: cfg, now: time.Now}
}

// WithClock fixes the validator's notion of now. Used by tests.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate produces one QualityReport for the batch. Identical input and
// thresholds always produce an identical report.
func (v *Validator) Validate(batch []models.Record) models.QualityReport {
	report := models.QualityReport{
		TotalRecords:   len(batch),
		RuleViolations: map[string]int{},
		NullRates:      map[string]float64{},
	}

	if len(batch) == 0 {
		report.Errors = append(report.Errors, "batch is empty")
		report.Verdict = models.VerdictFail
		return report
	}

	invalid := make([]bool, len(batch))
	hardViolated := v.checkRequiredFields(batch, &report, invalid)
	hardViolated = v.checkDuplicates(batch, &report, invalid) || hardViolated
	softViolated := v.checkCreatedAtWindow(batch, &report, invalid)
	softViolated = v.checkNumComments(batch, &report, invalid) || softViolated
	softViolated = v.checkNegativeScores(batch, &report) || softViolated

	for _, bad := range invalid {
		if bad {
			report.InvalidRecords++
		}
	}
	report.ValidRecords = report.TotalRecords - report.InvalidRecords

	switch {
	case hardViolated:
		report.Verdict = models.VerdictFail
	case softViolated:
		report.Verdict = models.VerdictWarn
	default:
		report.Verdict = models.VerdictPass
	}

	return report
}

func (v *Validator) checkRequiredFields(batch []models.Record, report *models.QualityReport, invalid []bool) bool {
	violated := false

	for _, field := range requiredFields {
		nulls := 0
		for i, record := range batch {
			if isNull(record, field) {
				nulls++
				invalid[i] = true
			}
		}

		rate := float64(nulls) / float64(len(batch))
		report.NullRates[field] = rate
		if nulls > 0 {
			report.RuleViolations[RuleRequiredFields] += nulls
		}

		if rate > v.cfg.MaxNullRate[field] {
			violated = true
			report.Errors = append(report.Errors,
				fmt.Sprintf("field %q null rate %.4f exceeds threshold %.4f", field, rate, v.cfg.MaxNullRate[field]))
		}
	}

	return violated
}

func (v *Validator) checkDuplicates(batch []models.Record, report *models.QualityReport, invalid []bool) bool {
	seen := make(map[string]struct{}, len(batch))
	duplicates := 0

	for i, record := range batch {
		if _, dup := seen[record.ID]; dup {
			duplicates++
			invalid[i] = true
			continue
		}
		seen[record.ID] = struct{}{}
	}

	report.DuplicateCount = duplicates
	if duplicates == 0 {
		return false
	}

	report.RuleViolations[RuleDuplicateIDs] = duplicates
	rate := float64(duplicates) / float64(len(batch))
	if rate > v.cfg.MaxDuplicateRate {
		report.Errors = append(report.Errors,
			fmt.Sprintf("duplicate id rate %.4f exceeds threshold %.4f (%d duplicates)", rate, v.cfg.MaxDuplicateRate, duplicates))
		return true
	}
	return false
}

func (v *Validator) checkNumComments(batch []models.Record, report *models.QualityReport, invalid []bool) bool {
	negative := 0
	for i, record := range batch {
		if record.NumComments < 0 {
			negative++
			invalid[i] = true
		}
	}

	if negative == 0 {
		return false
	}
	report.RuleViolations[RuleNegativeComment] = negative
	report.Warnings = append(report.Warnings,
		fmt.Sprintf("%d records have negative comment counts", negative))
	return true
}

func (v *Validator) checkCreatedAtWindow(batch []models.Record, report *models.QualityReport, invalid []bool) bool {
	cutoff := v.now().Add(v.cfg.MaxFutureSkew)
	outOfWindow := 0

	for i, record := range batch {
		if record.CreatedAt.IsZero() {
			continue // already counted by the required-field rule
		}
		if record.CreatedAt.Before(sourceEpoch) || record.CreatedAt.After(cutoff) {
			outOfWindow++
			invalid[i] = true
		}
	}

	if outOfWindow == 0 {
		return false
	}
	report.RuleViolations[RuleCreatedAtWindow] = outOfWindow
	report.Warnings = append(report.Warnings,
		fmt.Sprintf("%d records have created_at outside the valid window", outOfWindow))
	return true
}

func (v *Validator) checkNegativeScores(batch []models.Record, report *models.QualityReport) bool {
	negative := 0
	for _, record := range batch {
		if record.Score < 0 {
			negative++
		}
	}

	if negative > 0 {
		report.RuleViolations[RuleNegativeScore] = negative
	}

	rate := float64(negative) / float64(len(batch))
	if rate <= v.cfg.MaxNegativeRate {
		return false
	}
	report.Warnings = append(report.Warnings,
		fmt.Sprintf("negative score rate %.4f exceeds threshold %.4f", rate, v.cfg.MaxNegativeRate))
	return true
}

func isNull(record models.Record, field string) bool {
	switch field {
	case "id":
		return record.ID == ""
	case "subreddit":
		return record.Subreddit == ""
	case "created_at":
		return record.CreatedAt.IsZero()
	default:
		return false
	}
}
