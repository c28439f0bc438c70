package sentiment

import (
	"context"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"

	"github.com/lcampos/redditcurator/internal/models"
)

var (
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern  = regexp.MustCompile(`https?://\S+|www\.\S+`)
)

// VaderScorer is the lexicon model: fast, deterministic, no external
// dependency beyond the static lexicon. VADER's compound score is already in
// [-1, 1] so no rescaling is needed.
type VaderScorer struct {
	analyzer          *govader.SentimentIntensityAnalyzer
	positiveThreshold float64
	negativeThreshold float64
}

func NewVaderScorer(positiveThreshold, negativeThreshold float64) *VaderScorer {
	return &VaderScorer{
		analyzer:          govader.NewSentimentIntensityAnalyzer(),
		positiveThreshold: positiveThreshold,
		negativeThreshold: negativeThreshold,
	}
}

func (v *VaderScorer) Name() string { return "vader" }

func (v *VaderScorer) ScoreText(_ context.Context, text string) (models.ModelScore, error) {
	plainText := ConvertMarkdownToText(text)

	score := v.analyzer.PolarityScores(plainText).Compound

	var label models.SentimentLabel
	switch {
	case score > v.positiveThreshold:
		label = models.LabelPositive
	case score < v.negativeThreshold:
		label = models.LabelNegative
	default:
		label = models.LabelNeutral
	}

	return models.ModelScore{Score: score, Label: label}, nil
}

// RemoveLinks strips markdown links down to their text and drops bare URLs;
// URLs carry no sentiment and confuse the lexicon.
func RemoveLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1")
	return urlPattern.ReplaceAllString(input, "")
}

func ConvertMarkdownToText(input string) string {
	output := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	plainText := strings.Join(strings.Fields(string(output)), " ")

	return RemoveLinks(plainText)
}
