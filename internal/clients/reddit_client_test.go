package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lcampos/redditcurator/config"
	"github.com/lcampos/redditcurator/internal/errs"
	"github.com/lcampos/redditcurator/internal/models"
)

func testBackoff() config.BackoffConfig {
	return config.BackoffConfig{
		InitialDelay:  time.Millisecond,
		MaxDelay:      4 * time.Millisecond,
		MaxRetries:    3,
		JitterPercent: 0,
	}
}

func testClient(serverURL string) *RedditClient {
	reddit := config.RedditConfig{
		ClientID:     "test-id",
		ClientSecret: "test-secret",
		UserAgent:    "redditcurator-test/1.0",
	}
	return NewRedditClient(reddit, testBackoff()).WithBaseURL(serverURL)
}

func listingPage(after string, ids ...string) models.RedditAPIResponse {
	children := make([]models.RedditAPIChild, len(ids))
	for i, id := range ids {
		created := 1700000000.0
		score := int64(1)
		comments := int64(0)
		children[i] = models.RedditAPIChild{Data: models.RawItem{
			ID:          id,
			Subreddit:   "golang",
			Title:       "title " + id,
			Score:       &score,
			NumComments: &comments,
			CreatedUTC:  &created,
		}}
	}
	return models.RedditAPIResponse{Data: models.RedditAPIData{After: after, Children: children}}
}

func writeListing(w http.ResponseWriter, page models.RedditAPIResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func TestFetchPaginatesUntilLimit(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		switch r.URL.Query().Get("after") {
		case "":
			writeListing(w, listingPage("t3_b", "a", "b"))
		case "t3_b":
			writeListing(w, listingPage("", "c", "d"))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("after"))
		}
	}))
	defer server.Close()

	items, err := testClient(server.URL).Fetch(context.Background(), FetchRequest{
		Subreddit:  "golang",
		Sort:       "top",
		TimeFilter: "day",
		Limit:      3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d", len(items))
	}
	if requests != 2 {
		t.Errorf("expected 2 page requests, got %d", requests)
	}
	if items[0].ID != "a" || items[2].ID != "c" {
		t.Errorf("unexpected item order: %v", items)
	}
}

func TestFetchStopsOnEmptyPageWithCursor(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Exhausted listing that still hands out a cursor.
		writeListing(w, listingPage("t3_loop"))
	}))
	defer server.Close()

	done := make(chan struct{})
	var items []models.RawItem
	var err error
	go func() {
		items, err = testClient(server.URL).Fetch(context.Background(), FetchRequest{
			Subreddit: "golang", Sort: "new", Limit: 5,
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not terminate on a zero-item page with a cursor")
	}

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
	if requests != 1 {
		t.Errorf("expected the cursor to be abandoned after 1 request, got %d", requests)
	}
}

func TestFetchStopsWhenSourceExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeListing(w, listingPage("", "only"))
	}))
	defer server.Close()

	items, err := testClient(server.URL).Fetch(context.Background(), FetchRequest{
		Subreddit: "golang", Sort: "new", Limit: 50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item from an exhausted source, got %d", len(items))
	}
}

func TestFetchRetriesRateLimitThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeListing(w, listingPage("", "a"))
	}))
	defer server.Close()

	items, err := testClient(server.URL).Fetch(context.Background(), FetchRequest{
		Subreddit: "golang", Sort: "hot", Limit: 1,
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if len(items) != 1 || attempts != 2 {
		t.Errorf("expected 1 item after 2 attempts, got %d items, %d attempts", len(items), attempts)
	}
}

func TestFetchRetryAfterFloorsBackoff(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeListing(w, listingPage("", "a"))
	}))
	defer server.Close()

	// Computed backoff would be 1ms; the server's hint must floor it.
	start := time.Now()
	items, err := testClient(server.URL).Fetch(context.Background(), FetchRequest{
		Subreddit: "golang", Sort: "hot", Limit: 1,
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
	if elapsed < time.Second {
		t.Errorf("retry waited %v, expected at least the 1s Retry-After hint", elapsed)
	}
}

func TestFetchRateLimitExhaustionIsSourceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Fetch(context.Background(), FetchRequest{
		Subreddit: "golang", Sort: "hot", Limit: 1,
	})

	var unavailable *errs.SourceUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected SourceUnavailableError, got %v", err)
	}
	if unavailable.Subreddit != "golang" || unavailable.Attempts != 3 {
		t.Errorf("unexpected error detail: %+v", unavailable)
	}
}

func TestFetchAuthFailureAfterRefreshIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Fetch(context.Background(), FetchRequest{
		Subreddit: "golang", Sort: "hot", Limit: 1,
	})

	var authErr *errs.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(server.URL).Fetch(ctx, FetchRequest{
		Subreddit: "golang", Sort: "hot", Limit: 1,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffMonotonicUpToCap(t *testing.T) {
	max := 32 * time.Second
	delay := time.Second

	var sequence []time.Duration
	for i := 0; i < 8; i++ {
		sequence = append(sequence, delay)
		delay = nextBackoff(delay, max)
	}

	for i := 1; i < len(sequence); i++ {
		if sequence[i] < sequence[i-1] {
			t.Errorf("backoff decreased at step %d: %v -> %v", i, sequence[i-1], sequence[i])
		}
		if sequence[i] > max {
			t.Errorf("backoff exceeded cap at step %d: %v", i, sequence[i])
		}
	}
	if sequence[len(sequence)-1] != max {
		t.Errorf("expected the sequence to reach the cap, ended at %v", sequence[len(sequence)-1])
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"-1", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.header); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestJitterNeverIncreasesDelay(t *testing.T) {
	rc := testClient("http://unused")
	rc.backoff.JitterPercent = 20

	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		jittered := rc.jittered(base)
		if jittered > base {
			t.Fatalf("jitter increased the delay: %v > %v", jittered, base)
		}
		if jittered < base*80/100 {
			t.Fatalf("jitter removed more than 20%%: %v", jittered)
		}
	}
}
