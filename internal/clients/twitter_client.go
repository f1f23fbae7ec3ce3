package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spacesedan/ariss/internal/models"
)

const TWITTER_API_URL = "https://api.twitter.com/2"

// TwitterClient calls the v2 recent search endpoint with a bearer token.
type TwitterClient struct {
	Fetcher     *Fetcher
	bearerToken string
	apiURL      string
}

func NewTwitterClient(bearerToken, apiURL string) *TwitterClient {
	if apiURL == "" {
		apiURL = TWITTER_API_URL
	}
	return &TwitterClient{
		Fetcher:     NewFetcher("TwitterClient", nil, 0),
		bearerToken: bearerToken,
		apiURL:      strings.TrimRight(apiURL, "/"),
	}
}

// SearchRecent returns at most 100 tweets per call, the API maximum.
func (tc *TwitterClient) SearchRecent(ctx context.Context, query string, maxResults int) (*models.TwitterSearchResponse, error) {
	if tc.bearerToken == "" {
		return nil, errors.New("[TwitterClient] bearer token is missing")
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(min(100, max(10, maxResults))))
	params.Set("tweet.fields", "created_at,public_metrics,author_id,lang")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tc.bearerToken)

	var resp models.TwitterSearchResponse
	if err := tc.Fetcher.GetJSON(ctx, tc.apiURL+"/tweets/search/recent?"+params.Encode(), header, &resp); err != nil {
		return nil, fmt.Errorf("[TwitterClient] search %q: %w", query, err)
	}
	return &resp, nil
}
