package normalizer

import (
	"reflect"
	"testing"
	"time"

	"github.com/lcampos/redditcurator/internal/models"
)

func ptrF(f float64) *float64 { return &f }
func ptrI(i int64) *int64     { return &i }

func validItem() models.RawItem {
	return models.RawItem{
		ID:          "abc123",
		Subreddit:   "golang",
		Title:       "  Generics landed  ",
		Selftext:    "body text",
		Author:      "gopher",
		Score:       ptrI(42),
		NumComments: ptrI(7),
		CreatedUTC:  ptrF(1700000000),
	}
}

func TestNormalizeValidItem(t *testing.T) {
	n := New(2, 0)
	extractedAt := time.Unix(1700003600, 0).UTC()

	record, nerr := n.Normalize(validItem(), extractedAt)
	if nerr != nil {
		t.Fatalf("unexpected normalization error: %v", nerr)
	}

	if record.ID != "abc123" {
		t.Errorf("expected id abc123, got %q", record.ID)
	}
	if record.Title != "Generics landed" {
		t.Errorf("expected trimmed title, got %q", record.Title)
	}
	if record.Author == nil || *record.Author != "gopher" {
		t.Errorf("expected author gopher, got %v", record.Author)
	}
	if record.CreatedAt != time.Unix(1700000000, 0).UTC() {
		t.Errorf("expected UTC created_at, got %v", record.CreatedAt)
	}
	if record.CreatedAt.Location() != time.UTC {
		t.Errorf("created_at not in UTC: %v", record.CreatedAt.Location())
	}

	// score + 2*num_comments with zero decay
	if record.EngagementScore != 42+2*7 {
		t.Errorf("expected engagement 56, got %v", record.EngagementScore)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := New(2, 0.5)
	extractedAt := time.Unix(1700003600, 0).UTC()

	first, err1 := n.Normalize(validItem(), extractedAt)
	second, err2 := n.Normalize(validItem(), extractedAt)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("normalizing the same item twice produced different records:\n%+v\n%+v", first, second)
	}
}

func TestNormalizeMissingRequiredFields(t *testing.T) {
	n := New(2, 0)
	now := time.Now().UTC()

	tests := []struct {
		name   string
		mutate func(*models.RawItem)
		reason string
	}{
		{
			name:   "missing id",
			mutate: func(item *models.RawItem) { item.ID = " " },
			reason: "missing_required_field: id",
		},
		{
			name:   "missing subreddit",
			mutate: func(item *models.RawItem) { item.Subreddit = "" },
			reason: "missing_required_field: subreddit",
		},
		{
			name:   "missing created_at",
			mutate: func(item *models.RawItem) { item.CreatedUTC = nil },
			reason: "missing_required_field: created_at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(&item)

			_, nerr := n.Normalize(item, now)
			if nerr == nil {
				t.Fatal("expected a normalization error")
			}
			if nerr.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, nerr.Reason)
			}
		})
	}
}

func TestNormalizeAnonymizedAuthors(t *testing.T) {
	n := New(2, 0)
	now := time.Now().UTC()

	for _, author := range []string{"", "[deleted]", "[removed]"} {
		item := validItem()
		item.Author = author

		record, nerr := n.Normalize(item, now)
		if nerr != nil {
			t.Fatalf("unexpected error for author %q: %v", author, nerr)
		}
		if record.Author != nil {
			t.Errorf("expected nil author for %q, got %q", author, *record.Author)
		}
	}
}

func TestEngagementDecay(t *testing.T) {
	n := New(2, 0.1)
	created := time.Unix(1700000000, 0).UTC()
	extractedAt := created.Add(10 * time.Hour)

	item := validItem()
	record, nerr := n.Normalize(item, extractedAt)
	if nerr != nil {
		t.Fatalf("unexpected error: %v", nerr)
	}

	// (42 + 2*7) / (1 + 0.1*10) = 28
	if record.EngagementScore != 28 {
		t.Errorf("expected decayed engagement 28, got %v", record.EngagementScore)
	}
}

func TestNormalizeBatchCollectsSkips(t *testing.T) {
	n := New(2, 0)
	now := time.Now().UTC()

	broken := validItem()
	broken.ID = "broken"
	broken.CreatedUTC = nil

	records, skipped := n.NormalizeBatch([]models.RawItem{validItem(), broken, validItem()}, now)

	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped item, got %d", len(skipped))
	}
	if skipped[0].ItemID != "broken" || skipped[0].Reason != "missing_required_field: created_at" {
		t.Errorf("unexpected skip entry: %+v", skipped[0])
	}
}
