package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full configuration bundle for one pipeline run. The external
// orchestrator injects everything through the environment; nothing here is
// read after construction.
type Config struct {
	Reddit     RedditConfig
	Extraction ExtractionConfig
	Backoff    BackoffConfig
	Validation ValidationConfig
	Sentiment  SentimentConfig
	Storage    StorageConfig
}

// RedditConfig holds the bearer-credential triple for the source API.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

type ExtractionConfig struct {
	Subreddits        []string
	TimeFilter        string // hour, day, week, month, year, all
	Sort              string // hot, new, top, rising
	LimitPerSubreddit int

	// EmitPartialOnCancel keeps already-normalized records when a run is
	// cancelled between stages instead of discarding the whole batch.
	EmitPartialOnCancel bool
}

// BackoffConfig drives the source client's retry policy. Units are confirmed
// against the live API's Retry-After header, which floors the computed delay.
type BackoffConfig struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	MaxRetries    int
	JitterPercent int // 0-100, fraction of the delay randomized away
}

type ValidationConfig struct {
	MaxNullRate      map[string]float64 // per required field
	MaxDuplicateRate float64
	MaxFutureSkew    time.Duration
	MaxNegativeRate  float64 // soft: share of records with negative score
}

type SentimentConfig struct {
	Enabled   bool
	Models    []string // ordered, e.g. "vader", "transformer"
	TextField string   // "title" or "body_text"
	BatchSize int

	// Engagement formula knobs live here with the other scoring weights so a
	// single section of the environment reconfigures all derived numbers.
	CommentWeight float64
	AgeDecay      float64 // per-hour decay factor, 0 disables decay

	PositiveThreshold float64
	NegativeThreshold float64

	TransformerModelDir string
}

type StorageConfig struct {
	Bucket        string
	Region        string
	RunTable      string // DynamoDB run-summary table, empty disables
	KafkaBroker   string // empty disables the publish sink
	KafkaTopic    string
	ValkeyAddress string // empty disables the cross-run seen filter
}

// FromEnv builds a Config from the process environment, applying the
// defaults the original deployment shipped with.
func FromEnv() (Config, error) {
	cfg := Config{
		Reddit: RedditConfig{
			ClientID:     os.Getenv("REDDIT_CLIENT_ID"),
			ClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
			UserAgent:    envOr("REDDIT_USER_AGENT", "redditcurator/1.0"),
		},
		Extraction: ExtractionConfig{
			Subreddits:          splitList(os.Getenv("SUBREDDITS")),
			TimeFilter:          envOr("TIME_FILTER", "day"),
			Sort:                envOr("SORT", "top"),
			LimitPerSubreddit:   envInt("LIMIT_PER_SUBREDDIT", 100),
			EmitPartialOnCancel: os.Getenv("EMIT_PARTIAL_ON_CANCEL") == "true",
		},
		Backoff: BackoffConfig{
			InitialDelay:  envDuration("BACKOFF_INITIAL", time.Second),
			MaxDelay:      envDuration("BACKOFF_MAX", 32*time.Second),
			MaxRetries:    envInt("BACKOFF_MAX_RETRIES", 5),
			JitterPercent: envInt("BACKOFF_JITTER_PERCENT", 20),
		},
		Validation: ValidationConfig{
			MaxNullRate: map[string]float64{
				"id":         0,
				"subreddit":  0,
				"created_at": 0,
			},
			MaxDuplicateRate: envFloat("MAX_DUPLICATE_RATE", 0),
			MaxFutureSkew:    envDuration("MAX_FUTURE_SKEW", 5*time.Minute),
			MaxNegativeRate:  envFloat("MAX_NEGATIVE_SCORE_RATE", 0.10),
		},
		Sentiment: SentimentConfig{
			Enabled:             os.Getenv("ENABLE_SENTIMENT") != "false",
			Models:              splitList(envOr("SENTIMENT_MODELS", "vader")),
			TextField:           envOr("SENTIMENT_TEXT_FIELD", "title"),
			BatchSize:           envInt("SENTIMENT_BATCH_SIZE", 32),
			CommentWeight:       envFloat("ENGAGEMENT_COMMENT_WEIGHT", 2),
			AgeDecay:            envFloat("ENGAGEMENT_AGE_DECAY", 0),
			PositiveThreshold:   envFloat("SENTIMENT_POSITIVE_THRESHOLD", 0.05),
			NegativeThreshold:   envFloat("SENTIMENT_NEGATIVE_THRESHOLD", -0.05),
			TransformerModelDir: envOr("TRANSFORMER_MODEL_DIR", "./models"),
		},
		Storage: StorageConfig{
			Bucket:        os.Getenv("AWS_BUCKET_NAME"),
			Region:        envOr("AWS_REGION", "us-east-1"),
			RunTable:      os.Getenv("DYNAMO_RUN_TABLE"),
			KafkaBroker:   os.Getenv("KAFKA_BROKER"),
			KafkaTopic:    envOr("KAFKA_CURATED_TOPIC", "curated-records"),
			ValkeyAddress: os.Getenv("VALKEY_INIT_ADDRESS"),
		},
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var problems []string

	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		problems = append(problems, "REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required")
	}
	if len(c.Extraction.Subreddits) == 0 {
		problems = append(problems, "SUBREDDITS must name at least one subreddit")
	}
	if c.Extraction.LimitPerSubreddit <= 0 {
		problems = append(problems, "LIMIT_PER_SUBREDDIT must be positive")
	}
	switch c.Extraction.TimeFilter {
	case "hour", "day", "week", "month", "year", "all":
	default:
		problems = append(problems, fmt.Sprintf("invalid TIME_FILTER %q", c.Extraction.TimeFilter))
	}
	switch c.Extraction.Sort {
	case "hot", "new", "top", "rising":
	default:
		problems = append(problems, fmt.Sprintf("invalid SORT %q", c.Extraction.Sort))
	}
	if c.Sentiment.Enabled && len(c.Sentiment.Models) == 0 {
		problems = append(problems, "SENTIMENT_MODELS must name at least one model when sentiment is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
