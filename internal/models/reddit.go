package models

// RawItem is one post as the Reddit listing API returns it. It is discarded
// after normalization; only the fields the canonical Record needs are mapped.
type RawItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Subreddit   string   `json:"subreddit"`
	Title       string   `json:"title"`
	Selftext    string   `json:"selftext"`
	Author      string   `json:"author"`
	Score       *int64   `json:"ups"`
	NumComments *int64   `json:"num_comments"`
	CreatedUTC  *float64 `json:"created_utc"`
}

type RedditAPIResponse struct {
	Data RedditAPIData `json:"data"`
}

type RedditAPIData struct {
	After    string           `json:"after"`
	Children []RedditAPIChild `json:"children"`
}

type RedditAPIChild struct {
	Data RawItem `json:"data"`
}
