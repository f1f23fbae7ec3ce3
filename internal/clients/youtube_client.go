package clients

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spacesedan/ariss/internal/models"
)

const YOUTUBE_API_URL = "https://www.googleapis.com/youtube/v3"

// YouTubeClient calls the YouTube Data API v3 with an API key.
type YouTubeClient struct {
	Fetcher *Fetcher
	apiKey  string
	apiURL  string
}

func NewYouTubeClient(apiKey, apiURL string) *YouTubeClient {
	if apiURL == "" {
		apiURL = YOUTUBE_API_URL
	}
	return &YouTubeClient{
		Fetcher: NewFetcher("YouTubeClient", nil, 0),
		apiKey:  apiKey,
		apiURL:  strings.TrimRight(apiURL, "/"),
	}
}

func (yc *YouTubeClient) SearchVideos(ctx context.Context, query string, maxResults int, order string) ([]string, error) {
	if yc.apiKey == "" {
		return nil, errors.New("[YouTubeClient] API key is missing")
	}
	params := url.Values{}
	params.Set("part", "id")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("order", order)
	params.Set("key", yc.apiKey)

	var resp models.YouTubeSearchResponse
	if err := yc.Fetcher.GetJSON(ctx, yc.apiURL+"/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("[YouTubeClient] search %q: %w", query, err)
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

func (yc *YouTubeClient) CommentThreads(ctx context.Context, videoID string, maxResults int, order string) ([]models.YouTubeCommentThread, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("videoId", videoID)
	params.Set("maxResults", strconv.Itoa(min(maxResults, 100)))
	params.Set("order", order)
	params.Set("textFormat", "html")
	params.Set("key", yc.apiKey)

	var resp models.YouTubeCommentThreadsResponse
	if err := yc.Fetcher.GetJSON(ctx, yc.apiURL+"/commentThreads?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("[YouTubeClient] comments for %s: %w", videoID, err)
	}
	return resp.Items, nil
}
