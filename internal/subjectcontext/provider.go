package subjectcontext

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spacesedan/ariss/internal/models"
)

const (
	maxHeadlines   = 5
	headlinesFetch = 20
)

// Provider returns a short description of what is currently being said about
// a subject. An empty string means no context is available.
type Provider interface {
	GetContext(ctx context.Context, subject string) (string, error)
}

type HeadlineSource interface {
	Everything(ctx context.Context, query string, pageSize int) (*models.NewsAPIEverythingResponse, error)
}

// NewsProvider digests the latest news headlines mentioning a subject.
type NewsProvider struct {
	news HeadlineSource
}

func NewNewsProvider(news HeadlineSource) *NewsProvider {
	return &NewsProvider{news: news}
}

func (p *NewsProvider) GetContext(ctx context.Context, subject string) (string, error) {
	resp, err := p.news.Everything(ctx, subject, headlinesFetch)
	if err != nil {
		return "", fmt.Errorf("[NewsProvider] headlines for %q: %w", subject, err)
	}
	return digest(subject, resp.Articles), nil
}

func digest(subject string, articles []models.NewsAPIArticles) string {
	var lines []string
	seen := make(map[string]struct{})
	for _, a := range articles {
		title := strings.TrimSpace(a.Title)
		if title == "" || title == "[Removed]" {
			continue
		}
		if _, dup := seen[strings.ToLower(title)]; dup {
			continue
		}
		seen[strings.ToLower(title)] = struct{}{}

		line := "- " + title
		if a.Source.Name != "" {
			line += " (" + a.Source.Name + ")"
		}
		lines = append(lines, line)
		if len(lines) == maxHeadlines {
			break
		}
	}
	if len(lines) == 0 {
		slog.Debug("[NewsProvider] No headlines found", slog.String("subject", subject))
		return ""
	}
	return fmt.Sprintf("Recent headlines about %s:\n%s", subject, strings.Join(lines, "\n"))
}
