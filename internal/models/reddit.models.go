package models

import "encoding/json"

// RedditListing is the envelope Reddit wraps search results and comment
// trees in.
type RedditListing struct {
	Kind string            `json:"kind"`
	Data RedditListingData `json:"data"`
}

type RedditListingData struct {
	After    string        `json:"after"`
	Children []RedditThing `json:"children"`
}

type RedditThing struct {
	Kind string          `json:"kind"`
	Data RedditThingData `json:"data"`
}

// RedditThingData covers both submissions (t3) and comments (t1).
type RedditThingData struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Subreddit  string  `json:"subreddit"`
	Author     string  `json:"author"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Body       string  `json:"body"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
	// Replies is "" when a comment has no replies and a listing otherwise.
	Replies json.RawMessage `json:"replies"`
}

// ReplyListing decodes Replies, returning nil when there are none.
func (d RedditThingData) ReplyListing() *RedditListing {
	if len(d.Replies) == 0 || d.Replies[0] != '{' {
		return nil
	}
	var l RedditListing
	if err := json.Unmarshal(d.Replies, &l); err != nil {
		return nil
	}
	return &l
}
