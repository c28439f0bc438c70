package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/lcampos/redditcurator/config"
	"github.com/lcampos/redditcurator/internal/errs"
	"github.com/lcampos/redditcurator/internal/models"
)

// RedditClient wraps the OAuth listing API with pagination and backoff. Each
// instance owns its own credentials and backoff state so concurrent runs
// against different credentials do not interfere.
type RedditClient struct {
	conf      *clientcredentials.Config
	client    *http.Client
	baseURL   string
	userAgent string
	backoff   config.BackoffConfig

	mu        sync.Mutex
	refreshed bool // one token refresh per run before giving up on auth
}

// FetchRequest describes one subreddit listing pull.
type FetchRequest struct {
	Subreddit  string
	Sort       string // hot, new, top, rising
	TimeFilter string // only meaningful for top
	Limit      int
}

func NewRedditClient(reddit config.RedditConfig, backoff config.BackoffConfig) *RedditClient {
	oauthConf := &clientcredentials.Config{
		ClientID:     reddit.ClientID,
		ClientSecret: reddit.ClientSecret,
		TokenURL:     REDDIT_AUTH_URL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	return &RedditClient{
		conf:      oauthConf,
		client:    oauthConf.Client(context.Background()),
		baseURL:   REDDIT_API_URL,
		userAgent: reddit.UserAgent,
		backoff:   backoff,
	}
}

// WithBaseURL points the client at a different endpoint, token URL included.
// Used by tests.
func (rc *RedditClient) WithBaseURL(base string) *RedditClient {
	rc.baseURL = base
	rc.conf.TokenURL = base + "/api/v1/access_token"
	rc.client = &http.Client{}
	return rc
}

func (rc *RedditClient) refreshToken() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.client = rc.conf.Client(context.Background())
	rc.refreshed = true
}

// Fetch paginates the listing until req.Limit items are collected or the
// source is exhausted. Pagination is resumed from the current cursor only; a
// failed page retries from its own cursor, never from the start.
func (rc *RedditClient) Fetch(ctx context.Context, req FetchRequest) ([]models.RawItem, error) {
	var items []models.RawItem
	after := ""

	for len(items) < req.Limit {
		pageSize := req.Limit - len(items)
		if pageSize > REDDIT_PAGE_SIZE {
			pageSize = REDDIT_PAGE_SIZE
		}

		page, nextAfter, err := rc.fetchPageWithRetry(ctx, req, after, pageSize)
		if err != nil {
			return nil, err
		}

		items = append(items, page...)
		// An empty page means the source is exhausted even when it still
		// hands out a cursor; following it would loop forever.
		if nextAfter == "" || len(page) == 0 {
			break
		}
		after = nextAfter
	}

	if len(items) > req.Limit {
		items = items[:req.Limit]
	}

	slog.Info("[RedditClient] Listing fetched",
		slog.String("subreddit", req.Subreddit),
		slog.Int("items", len(items)))

	return items, nil
}

func (rc *RedditClient) fetchPageWithRetry(ctx context.Context, req FetchRequest, after string, pageSize int) ([]models.RawItem, string, error) {
	delay := rc.backoff.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= rc.backoff.MaxRetries; attempt++ {
		items, nextAfter, retryAfter, err := rc.fetchPage(ctx, req, after, pageSize)
		if err == nil {
			return items, nextAfter, nil
		}

		var authErr *errs.AuthenticationError
		if errors.As(err, &authErr) {
			return nil, "", err
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		lastErr = err
		wait := rc.jittered(delay)
		if retryAfter > wait {
			wait = retryAfter
		}

		slog.Warn("[RedditClient] Request failed, backing off",
			slog.String("subreddit", req.Subreddit),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(wait):
		}

		delay = nextBackoff(delay, rc.backoff.MaxDelay)
	}

	return nil, "", &errs.SourceUnavailableError{
		Subreddit: req.Subreddit,
		Attempts:  rc.backoff.MaxRetries,
		Err:       lastErr,
	}
}

// fetchPage issues one listing request. The returned duration is the server's
// Retry-After hint after a 429, zero otherwise.
func (rc *RedditClient) fetchPage(ctx context.Context, req FetchRequest, after string, pageSize int) ([]models.RawItem, string, time.Duration, error) {
	parsedUrl, err := url.Parse(fmt.Sprintf("%s/r/%s/%s", rc.baseURL, req.Subreddit, req.Sort))
	if err != nil {
		return nil, "", 0, fmt.Errorf("[RedditClient] Failed to parse URL: %w", err)
	}

	queryParams := parsedUrl.Query()
	queryParams.Add("limit", strconv.Itoa(pageSize))
	queryParams.Add("raw_json", "1")
	if req.Sort == "top" {
		queryParams.Add("t", req.TimeFilter)
	}
	if after != "" {
		queryParams.Add("after", after)
	}
	parsedUrl.RawQuery = queryParams.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedUrl.String(), nil)
	if err != nil {
		return nil, "", 0, err
	}
	httpReq.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(httpReq)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, "", 0, &errs.AuthenticationError{Err: err}
		}
		return nil, "", 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", 0, err
		}

		var listing models.RedditAPIResponse
		if err := json.Unmarshal(body, &listing); err != nil {
			return nil, "", 0, fmt.Errorf("[RedditClient] Failed to unmarshal listing: %w", err)
		}

		items := make([]models.RawItem, 0, len(listing.Data.Children))
		for _, child := range listing.Data.Children {
			items = append(items, child.Data)
		}
		return items, listing.Data.After, 0, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		rc.mu.Lock()
		alreadyRefreshed := rc.refreshed
		rc.mu.Unlock()
		if !alreadyRefreshed {
			slog.Warn("[RedditClient] Token rejected, refreshing once")
			rc.refreshToken()
			return rc.fetchPage(ctx, req, after, pageSize)
		}
		return nil, "", 0, &errs.AuthenticationError{
			Err: fmt.Errorf("source returned %d after token refresh", resp.StatusCode),
		}

	case http.StatusTooManyRequests:
		return nil, "", parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("429 Too Many Requests")

	default:
		return nil, "", 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// jittered randomizes away up to JitterPercent of the delay so concurrent
// subreddit fetches do not align their retries.
func (rc *RedditClient) jittered(d time.Duration) time.Duration {
	if rc.backoff.JitterPercent <= 0 {
		return d
	}
	maxJitter := d * time.Duration(rc.backoff.JitterPercent) / 100
	if maxJitter <= 0 {
		return d
	}
	return d - time.Duration(rand.Int63n(int64(maxJitter)))
}

// nextBackoff doubles the delay up to the cap, never past it.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
