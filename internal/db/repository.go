package db

import (
	"context"
	"time"

	"github.com/spacesedan/ariss/internal/models"
)

// ScoreRepository stores score records and their audit rows. Implementations
// are safe for concurrent callers; each call acquires its own connection or
// request and releases it before returning.
type ScoreRepository interface {
	// Save appends one record with its comment judgments atomically. Failures
	// wrap models.ErrRepositoryWrite.
	Save(ctx context.Context, record models.ScoreRecord, judgments []models.CommentJudgment) error
	// GetLatest returns models.ErrNotFound when the subject has no records.
	GetLatest(ctx context.Context, subject string) (models.ScoreRecord, error)
	// GetHistory returns records at or after since, oldest first.
	GetHistory(ctx context.Context, subject string, since time.Time) ([]models.ScoreRecord, error)
	ListSubjects(ctx context.Context) ([]string, error)
	// GetCommentJudgments returns up to limit audit rows of the subject's
	// latest record.
	GetCommentJudgments(ctx context.Context, subject string, limit int) ([]models.CommentJudgment, error)
	Close() error
}
