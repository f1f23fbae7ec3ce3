package collectors

import (
	"context"
	"log/slog"
	"time"

	"github.com/spacesedan/ariss/internal/models"
)

const (
	redditMinWords       = 3
	redditRepliesPerNode = 3
	redditThreadLimit    = 100
)

var redditSorts = []string{"relevance", "new"}

type RedditAPI interface {
	SearchSubmissions(ctx context.Context, subreddit, query, sort, timeFilter string, limit int) (*models.RedditListing, error)
	Comments(ctx context.Context, submissionID string, limit int) (*models.RedditListing, error)
}

// Reddit collects top-level comments and their first replies from
// submissions matching the subject.
type Reddit struct {
	api        RedditAPI
	timeFilter string
}

func NewReddit(api RedditAPI, timeFilter string) *Reddit {
	if timeFilter == "" {
		timeFilter = "month"
	}
	return &Reddit{api: api, timeFilter: timeFilter}
}

func (r *Reddit) Source() models.Source { return models.SourceReddit }

func (r *Reddit) Fetch(ctx context.Context, subject string, limit int) ([]models.Comment, error) {
	return r.fetch(ctx, subject, []string{""}, limit)
}

// FetchCategory searches r/all first, then the category's subreddits.
func (r *Reddit) FetchCategory(ctx context.Context, subject, category string, limit int) ([]models.Comment, error) {
	return r.fetch(ctx, subject, append([]string{""}, SubredditsFor(category)...), limit)
}

func (r *Reddit) fetch(ctx context.Context, subject string, subreddits []string, limit int) ([]models.Comment, error) {
	perPage := max(5, limit/10)
	out := newBatch(limit)
	threads := make(map[string]struct{})
	var lastErr error

	for _, sub := range subreddits {
		for _, sort := range redditSorts {
			if out.full() {
				return out.comments, nil
			}

			listing, err := r.api.SearchSubmissions(ctx, sub, subject, sort, r.timeFilter, perPage)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Warn("[RedditCollector] Search failed",
					slog.String("subject", subject),
					slog.String("subreddit", sub),
					slog.String("sort", sort),
					slog.String("error", err.Error()))
				lastErr = err
				continue
			}

			for _, child := range listing.Data.Children {
				if out.full() {
					break
				}
				if child.Kind != "t3" {
					continue
				}
				if _, done := threads[child.Data.ID]; done {
					continue
				}
				threads[child.Data.ID] = struct{}{}

				if err := r.collectThread(ctx, child.Data.ID, out); err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					slog.Warn("[RedditCollector] Failed to load comments",
						slog.String("submission", child.Data.ID),
						slog.String("error", err.Error()))
				}
			}
		}
	}

	if len(out.comments) == 0 && lastErr != nil {
		return nil, lastErr
	}
	slog.Info("[RedditCollector] Collected comments",
		slog.String("subject", subject),
		slog.Int("count", len(out.comments)))
	return out.comments, nil
}

func (r *Reddit) collectThread(ctx context.Context, submissionID string, out *batch) error {
	listing, err := r.api.Comments(ctx, submissionID, redditThreadLimit)
	if err != nil {
		return err
	}

	for _, top := range listing.Data.Children {
		if out.full() {
			return nil
		}
		if top.Kind != "t1" {
			continue
		}
		if c, ok := redditComment(top.Data); ok {
			out.add(c)
		}

		replies := top.Data.ReplyListing()
		if replies == nil {
			continue
		}
		taken := 0
		for _, reply := range replies.Data.Children {
			if taken == redditRepliesPerNode {
				break
			}
			if reply.Kind != "t1" {
				continue
			}
			if c, ok := redditComment(reply.Data); ok && out.add(c) {
				taken++
			}
		}
	}
	return nil
}

func redditComment(d models.RedditThingData) (models.Comment, bool) {
	if d.Body == "[deleted]" || d.Body == "[removed]" || d.ID == "" {
		return models.Comment{}, false
	}
	if wordCount(d.Body) < redditMinWords {
		return models.Comment{}, false
	}

	var ts time.Time
	if d.CreatedUTC > 0 {
		ts = time.Unix(int64(d.CreatedUTC), 0).UTC()
	}
	return models.Comment{
		Text:       d.Body,
		Source:     models.SourceReddit,
		PlatformID: d.ID,
		Timestamp:  ts,
		Author:     d.Author,
		Engagement: max(0, d.Score),
		Community:  d.Subreddit,
	}, true
}
