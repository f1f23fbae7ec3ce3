package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/spacesedan/ariss/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	REDDIT_AUTH_URL = "https://www.reddit.com/api/v1/access_token"
	REDDIT_API_URL  = "https://oauth.reddit.com"
)

type RedditOptions struct {
	ClientID          string
	ClientSecret      string
	UserAgent         string
	RequestsPerSecond float64
	// AuthURL and APIURL default to Reddit's production endpoints.
	AuthURL string
	APIURL  string
}

// RedditClient talks to the Reddit API with application-only OAuth.
type RedditClient struct {
	config    *clientcredentials.Config
	apiURL    string
	userAgent string

	mu      sync.Mutex
	fetcher *Fetcher
}

func NewRedditClient(opts RedditOptions) *RedditClient {
	if opts.AuthURL == "" {
		opts.AuthURL = REDDIT_AUTH_URL
	}
	if opts.APIURL == "" {
		opts.APIURL = REDDIT_API_URL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = USER_AGENT
	}

	oauthConf := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.AuthURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	return &RedditClient{
		config:    oauthConf,
		apiURL:    strings.TrimRight(opts.APIURL, "/"),
		userAgent: opts.UserAgent,
		fetcher:   NewFetcher("RedditClient", oauthConf.Client(context.Background()), opts.RequestsPerSecond),
	}
}

// RefreshClient drops the cached token so the next request authenticates again.
func (rc *RedditClient) RefreshClient() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.fetcher.Client = rc.config.Client(context.Background())
}

func (rc *RedditClient) currentFetcher() *Fetcher {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.fetcher
}

// ConfigureFetcher adjusts the retry budget of the underlying fetcher.
func (rc *RedditClient) ConfigureFetcher(f func(*Fetcher)) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	f(rc.fetcher)
}

// SearchSubmissions searches one subreddit for submissions matching query.
// An empty subreddit searches r/all.
func (rc *RedditClient) SearchSubmissions(ctx context.Context, subreddit, query, sort, timeFilter string, limit int) (*models.RedditListing, error) {
	if subreddit == "" {
		subreddit = "all"
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", sort)
	params.Set("t", timeFilter)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("type", "link")
	params.Set("raw_json", "1")
	if subreddit != "all" {
		params.Set("restrict_sr", "1")
	}

	var listing models.RedditListing
	endpoint := fmt.Sprintf("%s/r/%s/search?%s", rc.apiURL, url.PathEscape(subreddit), params.Encode())
	if err := rc.get(ctx, endpoint, &listing); err != nil {
		return nil, fmt.Errorf("[RedditClient] search %q: %w", query, err)
	}
	return &listing, nil
}

// Comments returns the comment tree of a submission, two levels deep.
func (rc *RedditClient) Comments(ctx context.Context, submissionID string, limit int) (*models.RedditListing, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("depth", "2")
	params.Set("sort", "top")
	params.Set("raw_json", "1")

	var listings []models.RedditListing
	endpoint := fmt.Sprintf("%s/comments/%s?%s", rc.apiURL, url.PathEscape(submissionID), params.Encode())
	if err := rc.get(ctx, endpoint, &listings); err != nil {
		return nil, fmt.Errorf("[RedditClient] comments for %s: %w", submissionID, err)
	}
	if len(listings) < 2 {
		return &models.RedditListing{}, nil
	}
	return &listings[1], nil
}

func (rc *RedditClient) get(ctx context.Context, endpoint string, out any) error {
	header := http.Header{}
	header.Set("User-Agent", rc.userAgent)

	err := rc.currentFetcher().GetJSON(ctx, endpoint, header, out)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		slog.Warn("[RedditClient] Token expired - Refreshing and Retrying...")
		rc.RefreshClient()
		return rc.currentFetcher().GetJSON(ctx, endpoint, header, out)
	}
	return err
}
