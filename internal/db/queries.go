package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spacesedan/ariss/internal/models"
)

// Summaries returns every subject with its latest score, most recently
// updated first.
func Summaries(ctx context.Context, repo ScoreRepository) ([]models.SubjectSummary, error) {
	subjects, err := repo.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(ctx, repo, subjects)
}

// SearchSubjects matches subjects containing term, case-insensitively.
func SearchSubjects(ctx context.Context, repo ScoreRepository, term string) ([]models.SubjectSummary, error) {
	subjects, err := repo.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(term))
	var matched []string
	for _, s := range subjects {
		if strings.Contains(strings.ToLower(s), needle) {
			matched = append(matched, s)
		}
	}
	return summarize(ctx, repo, matched)
}

func summarize(ctx context.Context, repo ScoreRepository, subjects []string) ([]models.SubjectSummary, error) {
	out := make([]models.SubjectSummary, 0, len(subjects))
	for _, s := range subjects {
		latest, err := repo.GetLatest(ctx, s)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest score for %q: %w", s, err)
		}
		out = append(out, models.SubjectSummary{
			Subject:     s,
			Category:    latest.Category,
			LatestScore: latest.Score,
			Confidence:  latest.Confidence,
			SampleSize:  latest.SampleSize,
			LastUpdated: latest.Timestamp,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out, nil
}

// Trending returns subjects whose score moved by at least minChange between
// the first and last record at or after since, biggest movers first.
func Trending(ctx context.Context, repo ScoreRepository, since time.Time, minChange float64) ([]models.TrendingSubject, error) {
	subjects, err := repo.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.TrendingSubject
	for _, s := range subjects {
		history, err := repo.GetHistory(ctx, s, since)
		if err != nil {
			return nil, fmt.Errorf("history for %q: %w", s, err)
		}
		if len(history) < 2 {
			continue
		}

		first, last := history[0], history[len(history)-1]
		change := last.Score - first.Score
		if math.Abs(change) < minChange {
			continue
		}

		direction := "up"
		if change < 0 {
			direction = "down"
		}
		out = append(out, models.TrendingSubject{
			Subject:     s,
			Category:    last.Category,
			LatestScore: last.Score,
			Change:      change,
			Direction:   direction,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Change) > math.Abs(out[j].Change)
	})
	return out, nil
}
