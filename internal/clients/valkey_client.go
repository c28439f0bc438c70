package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/valkey-io/valkey-go"
)

const VALKEY_SEEN_KEY = "reddit:seen_posts"

// ValkeyClient is an optional cross-run filter for posts already curated by a
// previous run. Runs remain correct without it; de-duplication within a batch
// never depends on this cache.
type ValkeyClient struct {
	client valkey.Client
}

func NewValkeyClient(address string) (*ValkeyClient, error) {
	opts := valkey.ClientOption{
		InitAddress:      []string{address},
		Password:         os.Getenv("VALKEY_PASSWORD"),
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}
	if os.Getenv("VALKEY_TLS") == "true" {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if resp := client.Do(ctx, client.B().Ping().Build()); resp.Error() != nil {
		client.Close()
		return nil, fmt.Errorf("[ValkeyClient] failed to ping: %w", resp.Error())
	}

	slog.Info("[ValkeyClient] Connected", slog.String("address", address))
	return &ValkeyClient{client: client}, nil
}

func (vc *ValkeyClient) Close() {
	vc.client.Close()
}

func (vc *ValkeyClient) IsSeen(ctx context.Context, postID string) bool {
	resp := vc.client.Do(ctx, vc.client.B().Sismember().Key(VALKEY_SEEN_KEY).Member(postID).Build())
	if resp.Error() != nil {
		slog.Warn("[ValkeyClient] SISMEMBER failed, treating post as unseen",
			slog.String("post_id", postID),
			slog.String("error", resp.Error().Error()))
		return false
	}
	seen, _ := resp.AsBool()
	return seen
}

func (vc *ValkeyClient) MarkSeen(ctx context.Context, postID string) error {
	resp := vc.client.Do(ctx, vc.client.B().Sadd().Key(VALKEY_SEEN_KEY).Member(postID).Build())
	if resp.Error() != nil {
		return fmt.Errorf("[ValkeyClient] SADD failed: %w", resp.Error())
	}
	return nil
}
