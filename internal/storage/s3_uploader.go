// Package storage holds the downstream sinks fed by the coordinator after a
// completed run: the S3 curated artifact, the DynamoDB run catalog, and the
// optional Kafka publish sink.
package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lcampos/redditcurator/internal/errs"
	"github.com/lcampos/redditcurator/internal/models"
)

var csvHeader = []string{
	"id", "subreddit", "title", "body_text", "author", "created_at",
	"score", "num_comments", "engagement_score", "extraction_batch_id",
	"sentiment_score", "sentiment_label",
}

// S3Uploader writes the curated batch and run report to the bucket using the
// warehouse's date partition convention. Upload failures surface as
// UploadError; retry policy belongs to the external orchestrator.
type S3Uploader struct {
	client *s3.Client
	bucket string
	now    func() time.Time
}

func NewS3Uploader(client *s3.Client, bucket string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, now: time.Now}
}

// UploadBatch writes the batch as a CSV object and returns its S3 URI.
func (u *S3Uploader) UploadBatch(ctx context.Context, batchID string, records []models.Record, scores map[string]models.SentimentScore) (string, error) {
	body, err := encodeCSV(records, scores)
	if err != nil {
		return "", &errs.UploadError{Destination: u.bucket, Err: err}
	}

	key := fmt.Sprintf("curated/reddit/dt=%s/%s.csv", u.now().UTC().Format("2006-01-02"), batchID)
	return u.put(ctx, key, body, "text/csv", map[string]string{
		"extraction_batch_id": batchID,
		"record_count":        strconv.Itoa(len(records)),
	})
}

// UploadReport writes the run report as a JSON object next to the artifact.
func (u *S3Uploader) UploadReport(ctx context.Context, report models.RunReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", &errs.UploadError{Destination: u.bucket, Err: err}
	}

	key := fmt.Sprintf("reports/reddit/dt=%s/%s.json", u.now().UTC().Format("2006-01-02"), report.BatchID)
	return u.put(ctx, key, body, "application/json", map[string]string{
		"extraction_batch_id": report.BatchID,
	})
}

func (u *S3Uploader) put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) (string, error) {
	slog.Info("[S3Uploader] Uploading object",
		slog.String("bucket", u.bucket),
		slog.String("key", key),
		slog.Int("bytes", len(body)))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return "", &errs.UploadError{Destination: fmt.Sprintf("s3://%s/%s", u.bucket, key), Err: err}
	}

	uri := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	slog.Info("[S3Uploader] Upload complete", slog.String("uri", uri))
	return uri, nil
}

func encodeCSV(records []models.Record, scores map[string]models.SentimentScore) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, record := range records {
		author := ""
		if record.Author != nil {
			author = *record.Author
		}

		sentimentScore, sentimentLabel := "", ""
		if score, ok := scores[record.ID]; ok {
			sentimentScore = strconv.FormatFloat(score.AggregateScore, 'f', -1, 64)
			sentimentLabel = string(score.AggregateLabel)
		}

		row := []string{
			record.ID,
			record.Subreddit,
			record.Title,
			record.BodyText,
			author,
			record.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(record.Score, 10),
			strconv.FormatInt(record.NumComments, 10),
			strconv.FormatFloat(record.EngagementScore, 'f', -1, 64),
			record.ExtractionBatchID,
			sentimentScore,
			sentimentLabel,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return buf.Bytes(), writer.Error()
}
