package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/lcampos/redditcurator/internal/models"
)

const transformerModelName = "cardiffnlp/twitter-roberta-base-sentiment-latest"

// TransformerScorer is the learned model: an ONNX text-classification
// pipeline run locally through hugot. Higher latency than the lexicon, so
// texts are fed through ScoreBatch to amortize the per-call overhead.
type TransformerScorer struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
}

func NewTransformerScorer(modelDir string) (*TransformerScorer, error) {
	if err := os.MkdirAll(modelDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("[TransformerScorer] failed to create model directory: %w", err)
	}

	slog.Info("[TransformerScorer] Ensuring model is available",
		slog.String("model", transformerModelName),
		slog.String("dir", modelDir))

	modelPath, err := hugot.DownloadModel(transformerModelName, modelDir, hugot.NewDownloadOptions())
	if err != nil {
		return nil, fmt.Errorf("[TransformerScorer] failed to download model: %w", err)
	}

	session, err := hugot.NewORTSession()
	if err != nil {
		return nil, fmt.Errorf("[TransformerScorer] failed to initialize session: %w", err)
	}

	config := hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "sentimentClassificationPipeline",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("[TransformerScorer] failed to initialize pipeline: %w", err)
	}

	return &TransformerScorer{session: session, pipeline: pipeline}, nil
}

func (t *TransformerScorer) Close() {
	if t.session != nil {
		t.session.Destroy()
	}
}

func (t *TransformerScorer) Name() string { return "transformer" }

func (t *TransformerScorer) ScoreText(ctx context.Context, text string) (models.ModelScore, error) {
	scores, err := t.ScoreBatch(ctx, []string{text})
	if err != nil {
		return models.ModelScore{}, err
	}
	return scores[0], nil
}

func (t *TransformerScorer) ScoreBatch(ctx context.Context, texts []string) ([]models.ModelScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	output, err := t.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("[TransformerScorer] classification failed: %w", err)
	}

	if len(output.ClassificationOutputs) != len(texts) {
		return nil, fmt.Errorf("[TransformerScorer] expected %d outputs, got %d",
			len(texts), len(output.ClassificationOutputs))
	}

	scores := make([]models.ModelScore, len(texts))
	for i, classes := range output.ClassificationOutputs {
		if len(classes) == 0 {
			return nil, fmt.Errorf("[TransformerScorer] empty classification for text %d", i)
		}
		scores[i] = signedScore(classes[0].Label, float64(classes[0].Score))
	}

	return scores, nil
}

// signedScore maps a class probability onto [-1, 1]: positive classes keep
// their probability, negative classes negate it, neutral pins to zero.
func signedScore(label string, probability float64) models.ModelScore {
	upper := strings.ToUpper(label)
	switch {
	case strings.Contains(upper, "POS"):
		return models.ModelScore{Score: probability, Label: models.LabelPositive}
	case strings.Contains(upper, "NEG"):
		return models.ModelScore{Score: -probability, Label: models.LabelNegative}
	default:
		return models.ModelScore{Score: 0, Label: models.LabelNeutral}
	}
}
