package collectors

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spacesedan/ariss/internal/models"
)

const (
	youtubeMinWords     = 4
	youtubeMaxPerThread = 100
	DefaultMaxVideos    = 15
)

var (
	youtubeOrders = []string{"relevance", "time"}
	lineBreaks    = strings.NewReplacer("<br>", " ", "<br/>", " ", "<br />", " ")
)

type YouTubeAPI interface {
	SearchVideos(ctx context.Context, query string, maxResults int, order string) ([]string, error)
	CommentThreads(ctx context.Context, videoID string, maxResults int, order string) ([]models.YouTubeCommentThread, error)
}

// YouTube collects top-level comments from the most relevant videos.
type YouTube struct {
	api       YouTubeAPI
	maxVideos int
}

func NewYouTube(api YouTubeAPI, maxVideos int) *YouTube {
	if maxVideos <= 0 {
		maxVideos = DefaultMaxVideos
	}
	return &YouTube{api: api, maxVideos: maxVideos}
}

func (y *YouTube) Source() models.Source { return models.SourceYouTube }

func (y *YouTube) Fetch(ctx context.Context, subject string, limit int) ([]models.Comment, error) {
	videos, err := y.api.SearchVideos(ctx, subject, y.maxVideos, "relevance")
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, nil
	}

	perVideo := max(5, limit/len(videos))
	out := newBatch(limit)

	for _, video := range videos {
		taken := 0
		for _, order := range youtubeOrders {
			if out.full() || taken >= perVideo {
				break
			}
			threads, err := y.api.CommentThreads(ctx, video, min(perVideo, youtubeMaxPerThread), order)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				// Videos with comments disabled answer 403; skip them.
				slog.Warn("[YouTubeCollector] Failed to load comments",
					slog.String("video", video),
					slog.String("order", order),
					slog.String("error", err.Error()))
				break
			}

			for _, thread := range threads {
				if taken >= perVideo {
					break
				}
				if c, ok := youtubeComment(video, thread); ok && out.add(c) {
					taken++
				}
			}
		}
	}

	slog.Info("[YouTubeCollector] Collected comments",
		slog.String("subject", subject),
		slog.Int("videos", len(videos)),
		slog.Int("count", len(out.comments)))
	return out.comments, nil
}

func youtubeComment(videoID string, thread models.YouTubeCommentThread) (models.Comment, bool) {
	top := thread.Snippet.TopLevelComment
	text := htmlToText(top.Snippet.TextDisplay)
	if text == "" {
		text = normalizeSpace(top.Snippet.TextOriginal)
	}
	if wordCount(text) < youtubeMinWords {
		return models.Comment{}, false
	}

	id := top.ID
	if id == "" {
		id = thread.ID
	}
	if id == "" {
		return models.Comment{}, false
	}

	ts, _ := time.Parse(time.RFC3339, top.Snippet.PublishedAt)
	return models.Comment{
		Text:       text,
		Source:     models.SourceYouTube,
		PlatformID: id,
		Timestamp:  ts.UTC(),
		Author:     top.Snippet.AuthorDisplayName,
		Engagement: max(0, top.Snippet.LikeCount),
		Community:  videoID,
	}, true
}

// htmlToText flattens YouTube's textDisplay markup, keeping line breaks as
// spaces.
func htmlToText(fragment string) string {
	if fragment == "" {
		return ""
	}
	fragment = lineBreaks.Replace(fragment)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeSpace(fragment)
	}
	return normalizeSpace(doc.Text())
}
