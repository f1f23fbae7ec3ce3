package collectors

import (
	"context"
	"strings"

	"github.com/spacesedan/ariss/internal/models"
)

// Collector gathers recent public comments about a subject from one platform.
// Fetch never returns two comments with the same platform id and may return
// fewer than limit.
type Collector interface {
	Source() models.Source
	Fetch(ctx context.Context, subject string, limit int) ([]models.Comment, error)
}

// CategoryCollector narrows a search to the communities of a subject category.
type CategoryCollector interface {
	Collector
	FetchCategory(ctx context.Context, subject, category string, limit int) ([]models.Comment, error)
}

// batch accumulates unique comments up to a limit.
type batch struct {
	limit    int
	seen     map[string]struct{}
	comments []models.Comment
}

func newBatch(limit int) *batch {
	return &batch{limit: limit, seen: make(map[string]struct{})}
}

func (b *batch) full() bool {
	return b.limit > 0 && len(b.comments) >= b.limit
}

func (b *batch) add(c models.Comment) bool {
	if b.full() {
		return false
	}
	if _, dup := b.seen[c.PlatformID]; dup {
		return false
	}
	b.seen[c.PlatformID] = struct{}{}
	b.comments = append(b.comments, c)
	return true
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
