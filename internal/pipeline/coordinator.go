// Package pipeline sequences one extraction run: fetch, normalize, validate,
// optionally score, then hand the curated batch to the configured sinks.
// Stages run in strict order because batch-level rules need the whole output
// of the previous stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lcampos/redditcurator/config"
	"github.com/lcampos/redditcurator/internal/clients"
	"github.com/lcampos/redditcurator/internal/errs"
	"github.com/lcampos/redditcurator/internal/models"
	"github.com/lcampos/redditcurator/internal/normalizer"
	"github.com/lcampos/redditcurator/internal/sentiment"
	"github.com/lcampos/redditcurator/internal/validator"
)

// SourceClient is the fetch boundary of the run.
type SourceClient interface {
	Fetch(ctx context.Context, req clients.FetchRequest) ([]models.RawItem, error)
}

// BatchUploader is the blob storage gateway boundary.
type BatchUploader interface {
	UploadBatch(ctx context.Context, batchID string, records []models.Record, scores map[string]models.SentimentScore) (string, error)
	UploadReport(ctx context.Context, report models.RunReport) (string, error)
}

// RecordPublisher is the optional streaming sink.
type RecordPublisher interface {
	PublishBatch(records []models.Record, scores map[string]models.SentimentScore) error
}

// RunCataloger stores run summaries for the orchestrator.
type RunCataloger interface {
	PutRunSummary(ctx context.Context, report models.RunReport) error
}

// SeenFilter suppresses posts a previous run already curated.
type SeenFilter interface {
	IsSeen(ctx context.Context, postID string) bool
	MarkSeen(ctx context.Context, postID string) error
}

// Coordinator owns the lifecycle of a run's batch and reports. Each run gets
// its own Coordinator; nothing here is shared across concurrent runs.
type Coordinator struct {
	cfg        config.Config
	source     SourceClient
	normalizer *normalizer.Normalizer
	validator  *validator.Validator
	aggregator *sentiment.Aggregator

	uploader  BatchUploader
	publisher RecordPublisher
	catalog   RunCataloger
	seen      SeenFilter

	now func() time.Time
}

// RunOutput is everything one run produces. Report is always populated;
// Records and Scores only on a completed (or explicitly partial) run.
type RunOutput struct {
	Report  models.RunReport
	Records []models.Record
	Scores  map[string]models.SentimentScore
}

func NewCoordinator(cfg config.Config, source SourceClient, agg *sentiment.Aggregator) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		source:     source,
		normalizer: normalizer.New(cfg.Sentiment.CommentWeight, cfg.Sentiment.AgeDecay),
		validator:  validator.New(cfg.Validation),
		aggregator: agg,
		now:        time.Now,
	}
}

func (c *Coordinator) WithUploader(u BatchUploader) *Coordinator    { c.uploader = u; return c }
func (c *Coordinator) WithPublisher(p RecordPublisher) *Coordinator { c.publisher = p; return c }
func (c *Coordinator) WithCatalog(cat RunCataloger) *Coordinator    { c.catalog = cat; return c }
func (c *Coordinator) WithSeenFilter(f SeenFilter) *Coordinator     { c.seen = f; return c }

func (c *Coordinator) withClock(now func() time.Time) *Coordinator { c.now = now; return c }

// Run executes the state machine
// Idle -> Extracting -> Normalizing -> Validating -> (Scoring) -> (Emitting)
// -> Completed. The returned error is non-nil only when the run ends in
// Failed.
func (c *Coordinator) Run(ctx context.Context) (RunOutput, error) {
	report := models.RunReport{
		BatchID:   uuid.NewString(),
		State:     models.StateIdle,
		StartedAt: c.now(),
	}
	output := RunOutput{}

	slog.Info("[Coordinator] Starting run", slog.String("batch_id", report.BatchID))

	// Extracting
	report.State = models.StateExtracting
	rawItems, err := c.extract(ctx, &report)
	if err != nil {
		return c.fail(ctx, output, report, models.StateExtracting, err)
	}
	// Normalizing. Cancellation is honored at stage boundaries from here on;
	// fetched items are always normalized first so partial-result mode has
	// records to preserve.
	report.State = models.StateNormalizing
	records, skipped := c.normalizer.NormalizeBatch(rawItems, report.StartedAt)
	report.Skipped = skipped
	report.Normalized = len(records)
	for i := range records {
		records[i].ExtractionBatchID = report.BatchID
	}
	if cancelled := c.checkCancelled(ctx); cancelled {
		return c.finishCancelled(ctx, output, report, records)
	}

	// Validating. The validator sees the batch before de-duplication so the
	// report counts every duplicate the source handed us.
	report.State = models.StateValidating
	quality := c.validator.Validate(records)
	report.Quality = &quality

	records = dedupeFirstSeen(records)
	report.Deduplicated = report.Normalized - len(records)

	if quality.Verdict == models.VerdictFail {
		return c.fail(ctx, output, report, models.StateValidating,
			fmt.Errorf("quality verdict fail: %v", quality.Errors))
	}
	if quality.Verdict == models.VerdictWarn {
		slog.Warn("[Coordinator] Quality verdict warn",
			slog.String("batch_id", report.BatchID),
			slog.Any("warnings", quality.Warnings))
	}
	if cancelled := c.checkCancelled(ctx); cancelled {
		return c.finishCancelled(ctx, output, report, records)
	}

	// Scoring
	scores := map[string]models.SentimentScore{}
	if c.cfg.Sentiment.Enabled && c.aggregator != nil {
		report.State = models.StateScoring
		result := c.aggregator.Score(ctx, records)
		scores = result.Scores
		report.Scored = len(result.Scores)
		report.ScoringIssues = result.ScoringIssues
		for _, id := range result.Unscorable {
			report.ScoringIssues[id] = append(report.ScoringIssues[id],
				(&errs.ScoringUnavailableError{RecordID: id}).Error())
		}
		if cancelled := c.checkCancelled(ctx); cancelled {
			return c.finishCancelled(ctx, output, report, records)
		}
	}

	// Completed: emit the artifact, then feed the remaining sinks.
	output.Records = records
	output.Scores = scores

	if c.uploader != nil {
		report.State = models.StateEmitting
		uri, err := c.uploader.UploadBatch(ctx, report.BatchID, records, scores)
		if err != nil {
			return c.fail(ctx, output, report, models.StateEmitting, err)
		}
		report.ArtifactURI = uri
	}

	report.State = models.StateCompleted
	report.Elapsed = c.now().Sub(report.StartedAt)
	output.Report = report

	c.emitToSinks(ctx, report, records, scores)

	slog.Info("[Coordinator] Run completed",
		slog.String("batch_id", report.BatchID),
		slog.Int("fetched", report.Fetched),
		slog.Int("normalized", report.Normalized),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("scored", report.Scored),
		slog.String("verdict", string(report.Quality.Verdict)),
		slog.Duration("elapsed", report.Elapsed))

	return output, nil
}

// extract pulls every configured subreddit. A rate-limit exhausted filter is
// skipped and reported; an authentication failure aborts the whole run.
func (c *Coordinator) extract(ctx context.Context, report *models.RunReport) ([]models.RawItem, error) {
	var items []models.RawItem

	for _, subreddit := range c.cfg.Extraction.Subreddits {
		fetched, err := c.source.Fetch(ctx, clients.FetchRequest{
			Subreddit:  subreddit,
			Sort:       c.cfg.Extraction.Sort,
			TimeFilter: c.cfg.Extraction.TimeFilter,
			Limit:      c.cfg.Extraction.LimitPerSubreddit,
		})
		if err != nil {
			var authErr *errs.AuthenticationError
			if errors.As(err, &authErr) {
				return nil, err
			}

			var unavailable *errs.SourceUnavailableError
			if errors.As(err, &unavailable) {
				slog.Warn("[Coordinator] Skipping unavailable subreddit",
					slog.String("subreddit", subreddit),
					slog.String("error", err.Error()))
				report.Skipped = append(report.Skipped, models.SkippedItem{
					ItemID: "r/" + subreddit,
					Reason: "source_unavailable",
				})
				continue
			}
			if ctx.Err() != nil {
				// Cancellation is handled at the stage boundary; keep the
				// count of what made it in before the cut.
				report.Fetched = len(items)
				return items, nil
			}
			return nil, err
		}

		items = append(items, c.filterSeen(ctx, fetched)...)
	}

	report.Fetched = len(items)
	return items, nil
}

func (c *Coordinator) filterSeen(ctx context.Context, items []models.RawItem) []models.RawItem {
	if c.seen == nil {
		return items
	}
	kept := items[:0]
	for _, item := range items {
		if c.seen.IsSeen(ctx, item.ID) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func (c *Coordinator) emitToSinks(ctx context.Context, report models.RunReport, records []models.Record, scores map[string]models.SentimentScore) {
	if c.uploader != nil {
		if _, err := c.uploader.UploadReport(ctx, report); err != nil {
			slog.Warn("[Coordinator] Failed to upload run report",
				slog.String("error", err.Error()))
		}
	}
	if c.catalog != nil {
		if err := c.catalog.PutRunSummary(ctx, report); err != nil {
			slog.Warn("[Coordinator] Failed to catalog run summary",
				slog.String("error", err.Error()))
		}
	}
	if c.publisher != nil && len(records) > 0 {
		if err := c.publisher.PublishBatch(records, scores); err != nil {
			slog.Warn("[Coordinator] Failed to publish curated batch",
				slog.String("error", err.Error()))
		}
	}
	if c.seen != nil {
		for _, record := range records {
			if err := c.seen.MarkSeen(ctx, record.ID); err != nil {
				slog.Warn("[Coordinator] Failed to mark record as seen",
					slog.String("record_id", record.ID),
					slog.String("error", err.Error()))
				break
			}
		}
	}
}

// fail transitions the run to Failed. The report is still emitted; the
// curated artifact is not.
func (c *Coordinator) fail(ctx context.Context, output RunOutput, report models.RunReport, stage models.RunState, cause error) (RunOutput, error) {
	report.State = models.StateFailed
	report.FailedStage = stage
	report.FailureCause = cause.Error()
	report.Elapsed = c.now().Sub(report.StartedAt)
	output.Report = report
	output.Records = nil
	output.Scores = nil

	slog.Error("[Coordinator] Run failed",
		slog.String("batch_id", report.BatchID),
		slog.String("stage", string(stage)),
		slog.String("cause", cause.Error()))

	c.emitToSinks(context.WithoutCancel(ctx), report, nil, nil)
	return output, cause
}

func (c *Coordinator) checkCancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

// finishCancelled reports a cancelled run, distinct from Failed. Records
// normalized so far survive only in partial-result mode, and no artifact is
// uploaded either way.
func (c *Coordinator) finishCancelled(ctx context.Context, output RunOutput, report models.RunReport, records []models.Record) (RunOutput, error) {
	report.State = models.StateCancelled
	report.Elapsed = c.now().Sub(report.StartedAt)
	output.Report = report
	if c.cfg.Extraction.EmitPartialOnCancel {
		output.Records = records
	}

	slog.Warn("[Coordinator] Run cancelled",
		slog.String("batch_id", report.BatchID),
		slog.Bool("partial_result", c.cfg.Extraction.EmitPartialOnCancel))

	c.emitToSinks(context.WithoutCancel(ctx), report, nil, nil)
	return output, nil
}

// dedupeFirstSeen drops repeated ids across pages, keeping the first
// occurrence.
func dedupeFirstSeen(records []models.Record) []models.Record {
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	for _, record := range records {
		if _, dup := seen[record.ID]; dup {
			continue
		}
		seen[record.ID] = struct{}{}
		out = append(out, record)
	}
	return out
}
