package sentiment

import (
	"context"

	"github.com/lcampos/redditcurator/internal/models"
)

// UnavailableScorer stands in for a model that failed to initialize. Keeping
// it in the model set makes the omission observable per record instead of
// silently shrinking the configured set.
type UnavailableScorer struct {
	name string
	err  error
}

func NewUnavailableScorer(name string, err error) *UnavailableScorer {
	return &UnavailableScorer{name: name, err: err}
}

func (u *UnavailableScorer) Name() string { return u.name }

func (u *UnavailableScorer) ScoreText(context.Context, string) (models.ModelScore, error) {
	return models.ModelScore{}, u.err
}
