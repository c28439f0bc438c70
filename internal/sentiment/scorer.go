package sentiment

import (
	"context"

	"github.com/lcampos/redditcurator/internal/models"
)

// Scorer is the single capability every model variant implements. New model
// types plug in by implementing it; there is no base scorer to extend.
type Scorer interface {
	Name() string
	// ScoreText returns a score normalized to [-1, 1] and its label.
	ScoreText(ctx context.Context, text string) (models.ModelScore, error)
}

// BatchScorer is an optional throughput capability. Providers that pay a
// fixed per-call overhead implement it; the aggregator selects it
// automatically when present.
type BatchScorer interface {
	Scorer
	ScoreBatch(ctx context.Context, texts []string) ([]models.ModelScore, error)
}
