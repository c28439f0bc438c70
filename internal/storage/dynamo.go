package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/lcampos/redditcurator/internal/models"
)

// RunCatalog keeps one DynamoDB item per run so the orchestrator can query
// run history without parsing report objects out of the bucket.
type RunCatalog struct {
	client *dynamodb.Client
	table  string
}

func NewRunCatalog(client *dynamodb.Client, table string) *RunCatalog {
	return &RunCatalog{client: client, table: table}
}

type runSummaryItem struct {
	BatchID     string `dynamodbav:"batch_id"`
	State       string `dynamodbav:"state"`
	Verdict     string `dynamodbav:"verdict,omitempty"`
	Fetched     int    `dynamodbav:"fetched"`
	Normalized  int    `dynamodbav:"normalized"`
	Skipped     int    `dynamodbav:"skipped"`
	Scored      int    `dynamodbav:"scored"`
	ArtifactURI string `dynamodbav:"artifact_uri,omitempty"`
	StartedAt   string `dynamodbav:"started_at"`
	ElapsedMS   int64  `dynamodbav:"elapsed_ms"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
}

func (rc *RunCatalog) PutRunSummary(ctx context.Context, report models.RunReport) error {
	item := runSummaryItem{
		BatchID:     report.BatchID,
		State:       string(report.State),
		Fetched:     report.Fetched,
		Normalized:  report.Normalized,
		Skipped:     len(report.Skipped),
		Scored:      report.Scored,
		ArtifactURI: report.ArtifactURI,
		StartedAt:   report.StartedAt.UTC().Format(time.RFC3339),
		ElapsedMS:   report.Elapsed.Milliseconds(),
		ExpiresAt:   time.Now().Add(30 * 24 * time.Hour).Unix(),
	}
	if report.Quality != nil {
		item.Verdict = string(report.Quality.Verdict)
	}

	attrs, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("[RunCatalog] Failed to marshal run summary: %w", err)
	}

	// One write with a short retry loop; losing a catalog row never fails a
	// run that already produced its artifact.
	backoff := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		_, err = rc.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(rc.table),
			Item:      attrs,
		})
		if err == nil {
			slog.Info("[RunCatalog] Run summary stored",
				slog.String("batch_id", report.BatchID),
				slog.String("table", rc.table))
			return nil
		}
		if attempt >= 3 {
			return fmt.Errorf("[RunCatalog] Failed to store run summary: %w", err)
		}

		slog.Warn("[RunCatalog] PutItem failed, retrying...",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
