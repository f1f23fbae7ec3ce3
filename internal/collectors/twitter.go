package collectors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spacesedan/ariss/internal/models"
)

const twitterMinWords = 5

type TwitterAPI interface {
	SearchRecent(ctx context.Context, query string, maxResults int) (*models.TwitterSearchResponse, error)
}

// Twitter collects recent original English tweets. Engagement counts likes
// and retweets.
type Twitter struct {
	api TwitterAPI
}

func NewTwitter(api TwitterAPI) *Twitter {
	return &Twitter{api: api}
}

func (t *Twitter) Source() models.Source { return models.SourceTwitter }

func (t *Twitter) Fetch(ctx context.Context, subject string, limit int) ([]models.Comment, error) {
	resp, err := t.api.SearchRecent(ctx, TwitterQuery(subject), limit)
	if err != nil {
		return nil, err
	}

	authors := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		authors[u.ID] = u.Username
	}

	out := newBatch(limit)
	for _, tw := range resp.Data {
		text := normalizeSpace(tw.Text)
		if tw.ID == "" || wordCount(text) < twitterMinWords {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, tw.CreatedAt)
		out.add(models.Comment{
			Text:       text,
			Source:     models.SourceTwitter,
			PlatformID: tw.ID,
			Timestamp:  ts.UTC(),
			Author:     authors[tw.AuthorID],
			Engagement: max(0, tw.PublicMetrics.LikeCount+tw.PublicMetrics.RetweetCount),
		})
	}

	slog.Info("[TwitterCollector] Collected tweets",
		slog.String("subject", subject),
		slog.Int("count", len(out.comments)))
	return out.comments, nil
}

// TwitterQuery quotes multi-word subjects and drops retweets and replies.
func TwitterQuery(subject string) string {
	subject = strings.TrimSpace(subject)
	if strings.ContainsAny(subject, " \t") {
		subject = `"` + strings.ReplaceAll(subject, `"`, "") + `"`
	}
	return fmt.Sprintf("%s -is:retweet -is:reply lang:en", subject)
}
