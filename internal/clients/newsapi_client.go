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

	"github.com/spacesedan/ariss/internal/models"
)

const NEWS_API_URL = "https://newsapi.org/v2"

type NewsAPIClient struct {
	Fetcher *Fetcher
	APIKey  string
	apiURL  string
}

func NewNewsAPIClient(apiKey, apiURL string) *NewsAPIClient {
	if apiURL == "" {
		apiURL = NEWS_API_URL
	}
	return &NewsAPIClient{
		Fetcher: NewFetcher("NewsAPIClient", nil, 0),
		APIKey:  apiKey,
		apiURL:  strings.TrimRight(apiURL, "/"),
	}
}

// Everything returns the most recent English articles mentioning query.
func (n *NewsAPIClient) Everything(ctx context.Context, query string, pageSize int) (*models.NewsAPIEverythingResponse, error) {
	if n.APIKey == "" {
		slog.Error("[NewsAPIClient] API key is missing")
		return nil, errors.New("[NewsAPIClient] API key is missing")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(pageSize))

	header := http.Header{}
	header.Set("X-Api-Key", n.APIKey)

	var response models.NewsAPIEverythingResponse
	if err := n.Fetcher.GetJSON(ctx, n.apiURL+"/everything?"+params.Encode(), header, &response); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			slog.Error("[NewsAPIClient] Invalid API Key, check credentials")
		}
		return nil, fmt.Errorf("[NewsAPIClient] everything %q: %w", query, err)
	}

	slog.Info("[NewsAPIClient] Successfully fetched articles",
		slog.String("query", query),
		slog.Int("count", len(response.Articles)))
	return &response, nil
}
