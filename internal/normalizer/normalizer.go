// Package normalizer converts raw listing payloads into the canonical
// Record schema. Items that fail normalization are reported and skipped; a
// bad item never aborts the batch.
package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/lcampos/redditcurator/internal/errs"
	"github.com/lcampos/redditcurator/internal/models"
)

// Reddit anonymizes removed accounts with these sentinels.
var anonymizedAuthors = map[string]struct{}{
	"":          {},
	"[deleted]": {},
	"[removed]": {},
}

type Normalizer struct {
	commentWeight float64
	ageDecay      float64
}

func New(commentWeight, ageDecay float64) *Normalizer {
	return &Normalizer{
		commentWeight: commentWeight,
		ageDecay:      ageDecay,
	}
}

// Normalize maps one raw item to a Record. The extraction timestamp is an
// input so normalizing the same item twice yields identical output.
func (n *Normalizer) Normalize(item models.RawItem, extractedAt time.Time) (models.Record, *errs.NormalizationError) {
	if strings.TrimSpace(item.ID) == "" {
		return models.Record{}, &errs.NormalizationError{Reason: "missing_required_field: id"}
	}
	if strings.TrimSpace(item.Subreddit) == "" {
		return models.Record{}, &errs.NormalizationError{ItemID: item.ID, Reason: "missing_required_field: subreddit"}
	}
	if item.CreatedUTC == nil {
		return models.Record{}, &errs.NormalizationError{ItemID: item.ID, Reason: "missing_required_field: created_at"}
	}
	if *item.CreatedUTC < 0 {
		return models.Record{}, &errs.NormalizationError{
			ItemID: item.ID,
			Reason: fmt.Sprintf("invalid_field_format: created_utc=%v", *item.CreatedUTC),
		}
	}

	createdAt := floatSecondsToUTC(*item.CreatedUTC)

	var score, numComments int64
	if item.Score != nil {
		score = *item.Score
	}
	if item.NumComments != nil {
		numComments = *item.NumComments
	}

	record := models.Record{
		ID:          item.ID,
		Subreddit:   item.Subreddit,
		Title:       strings.TrimSpace(item.Title),
		BodyText:    strings.TrimSpace(item.Selftext),
		Author:      normalizeAuthor(item.Author),
		CreatedAt:   createdAt,
		Score:       score,
		NumComments: numComments,
	}
	record.EngagementScore = n.engagement(score, numComments, extractedAt.Sub(createdAt))

	return record, nil
}

// NormalizeBatch runs Normalize over a slice, collecting skips.
func (n *Normalizer) NormalizeBatch(items []models.RawItem, extractedAt time.Time) ([]models.Record, []models.SkippedItem) {
	records := make([]models.Record, 0, len(items))
	var skipped []models.SkippedItem

	for _, item := range items {
		record, nerr := n.Normalize(item, extractedAt)
		if nerr != nil {
			skipped = append(skipped, models.SkippedItem{ItemID: nerr.ItemID, Reason: nerr.Reason})
			continue
		}
		records = append(records, record)
	}

	return records, skipped
}

// engagement combines score and comment count, decayed by age. With zero
// decay the formula reduces to score + commentWeight*num_comments.
func (n *Normalizer) engagement(score, numComments int64, age time.Duration) float64 {
	raw := float64(score) + n.commentWeight*float64(numComments)
	if n.ageDecay <= 0 {
		return raw
	}
	ageHours := age.Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return raw / (1 + n.ageDecay*ageHours)
}

func normalizeAuthor(author string) *string {
	if _, anonymized := anonymizedAuthors[author]; anonymized {
		return nil
	}
	a := author
	return &a
}

func floatSecondsToUTC(secs float64) time.Time {
	whole := int64(secs)
	frac := int64((secs - float64(whole)) * float64(time.Second))
	return time.Unix(whole, frac).UTC()
}
