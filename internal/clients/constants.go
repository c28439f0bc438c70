package clients

const (
	REDDIT_AUTH_URL = "https://www.reddit.com/api/v1/access_token"
	REDDIT_API_URL  = "https://oauth.reddit.com"

	// Reddit listings cap out at 100 items per page regardless of the
	// requested limit.
	REDDIT_PAGE_SIZE = 100
)
