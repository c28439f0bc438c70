package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lcampos/redditcurator/config"
	"github.com/lcampos/redditcurator/internal/models"
	"github.com/lcampos/redditcurator/internal/utils"
)

// Aggregator fans record text out to every configured model and folds the
// per-model outputs into one SentimentScore per record. It only reads
// Records; the returned map is keyed by record ID, never by arrival order.
type Aggregator struct {
	scorers           []Scorer
	textField         string
	batchSize         int
	positiveThreshold float64
	negativeThreshold float64
}

// Result is the aggregation outcome for one batch. ScoringIssues carries the
// per-record notes for failed models; Unscorable lists records every model
// failed on.
type Result struct {
	Scores        map[string]models.SentimentScore
	ScoringIssues map[string][]string
	Unscorable    []string
}

func NewAggregator(scorers []Scorer, cfg config.SentimentConfig) *Aggregator {
	return &Aggregator{
		scorers:           scorers,
		textField:         cfg.TextField,
		batchSize:         cfg.BatchSize,
		positiveThreshold: cfg.PositiveThreshold,
		negativeThreshold: cfg.NegativeThreshold,
	}
}

// Score computes one SentimentScore per record. Models are dispatched
// concurrently; a failing model is omitted from the mean and noted per
// record, it never aborts the batch.
func (a *Aggregator) Score(ctx context.Context, records []models.Record) Result {
	result := Result{
		Scores:        make(map[string]models.SentimentScore, len(records)),
		ScoringIssues: map[string][]string{},
	}
	if len(records) == 0 {
		return result
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = strings.TrimSpace(a.textOf(record))
	}

	// modelScores[model name] is positional over records; a nil entry means
	// that model failed for the whole batch.
	modelScores := make(map[string][]models.ModelScore, len(a.scorers))
	modelErrs := make(map[string]error, len(a.scorers))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, scorer := range a.scorers {
		wg.Add(1)
		go func(s Scorer) {
			defer wg.Done()
			scores, err := a.runModel(ctx, s, texts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				modelErrs[s.Name()] = err
				return
			}
			modelScores[s.Name()] = scores
		}(scorer)
	}
	wg.Wait()

	for name, err := range modelErrs {
		slog.Warn("[Aggregator] Model unavailable for this batch",
			slog.String("model", name),
			slog.String("error", err.Error()))
	}

	for i, record := range records {
		score := models.SentimentScore{
			ModelScores: make(map[string]models.ModelScore, len(a.scorers)),
		}

		if texts[i] == "" {
			// Empty text is observable in the output, never silently skipped.
			for _, scorer := range a.scorers {
				score.ModelScores[scorer.Name()] = models.ModelScore{Score: 0, Label: models.LabelNeutral}
			}
			score.AggregateScore = 0
			score.AggregateLabel = models.LabelNeutral
			result.Scores[record.ID] = score
			continue
		}

		var sum float64
		available := 0
		for _, scorer := range a.scorers {
			name := scorer.Name()
			positional, ok := modelScores[name]
			if !ok {
				score.FailedModels = append(score.FailedModels, name)
				result.ScoringIssues[record.ID] = append(result.ScoringIssues[record.ID],
					fmt.Sprintf("model_unavailable: %s", name))
				continue
			}
			score.ModelScores[name] = positional[i]
			sum += positional[i].Score
			available++
		}

		if available == 0 {
			result.Unscorable = append(result.Unscorable, record.ID)
			continue
		}

		score.AggregateScore = sum / float64(available)
		score.AggregateLabel = a.label(score.AggregateScore)
		result.Scores[record.ID] = score
	}

	return result
}

// runModel scores every text with one model, using the batch capability when
// the provider has it.
func (a *Aggregator) runModel(ctx context.Context, scorer Scorer, texts []string) ([]models.ModelScore, error) {
	if batcher, ok := scorer.(BatchScorer); ok {
		scores := make([]models.ModelScore, 0, len(texts))
		for _, chunk := range utils.Chunk(texts, a.batchSize) {
			chunkScores, err := batcher.ScoreBatch(ctx, chunk)
			if err != nil {
				return nil, err
			}
			if len(chunkScores) != len(chunk) {
				return nil, fmt.Errorf("model %s returned %d scores for %d texts",
					scorer.Name(), len(chunkScores), len(chunk))
			}
			scores = append(scores, chunkScores...)
		}
		return scores, nil
	}

	scores := make([]models.ModelScore, len(texts))
	for i, text := range texts {
		score, err := scorer.ScoreText(ctx, text)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}
	return scores, nil
}

func (a *Aggregator) textOf(record models.Record) string {
	if a.textField == "body_text" {
		return record.BodyText
	}
	return record.Title
}

func (a *Aggregator) label(score float64) models.SentimentLabel {
	switch {
	case score > a.positiveThreshold:
		return models.LabelPositive
	case score < a.negativeThreshold:
		return models.LabelNegative
	default:
		return models.LabelNeutral
	}
}
