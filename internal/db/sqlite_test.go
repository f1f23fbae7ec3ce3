package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spacesedan/ariss/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "ariss.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleRecord(subject string, score float64, ts time.Time) models.ScoreRecord {
	return models.ScoreRecord{
		ID:           uuid.New(),
		Subject:      subject,
		Score:        score,
		Confidence:   42.5,
		SampleSize:   3,
		Distribution: models.Distribution{Positive: 2, Neutral: 0, Negative: 1},
		MeanBias:     20,
		Timestamp:    ts,
		Mode:         models.ModeWeightedMean,
		Variance:     800,
		StdDev:       28.284271247461902,
		MinScore:     20,
		MaxScore:     80,
		SourceBreakdown: map[models.Source]int{
			models.SourceReddit:  2,
			models.SourceYouTube: 1,
		},
		Category: "Technology",
	}
}

func sampleJudgments() []models.CommentJudgment {
	hint := 0.75
	c := models.Comment{
		Text:       "the new release is fantastic",
		Source:     models.SourceReddit,
		PlatformID: "k1",
		Timestamp:  time.Date(2026, 4, 1, 8, 0, 0, 123456789, time.UTC),
		Author:     "someone",
		Engagement: 17,
		Community:  "technology",
	}
	return []models.CommentJudgment{
		{
			Comment: c,
			Judgment: models.SentimentJudgment{
				CommentRef: c.Key(), RawScore: 88, Scale: models.ScalePercent, BiasScore: 30,
				ConfidenceHint: &hint, DetectedContext: "release", Classifier: "ensemble",
			},
			Weighted: models.WeightedJudgment{
				CommentRef: c.Key(), Source: c.Source, AdjustedSentiment: 88, Weight: 0.5,
				BiasScore: 30, Credibility: 1.4, BiasDiscount: 0.7, LengthFactor: 0.5,
			},
		},
		{
			Comment: models.Comment{Text: "meh", Source: models.SourceTwitter, PlatformID: "t9"},
			Judgment: models.SentimentJudgment{
				CommentRef: "twitter:t9", RawScore: -0.1, Scale: models.ScaleUnit, BiasScore: 5, Classifier: "vader",
			},
			Excluded: true,
		},
	}
}

func TestSQLiteSaveThenGetLatestRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestSQLite(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 10, 0, 0, 987654321, time.UTC))

	saved := sampleRecord("Acme", 61.25, clock.Now())
	require.NoError(t, repo.Save(ctx, saved, sampleJudgments()))

	got, err := repo.GetLatest(ctx, "Acme")
	require.NoError(t, err)

	assert.Equal(t, saved.Score, got.Score)
	assert.Equal(t, saved.SampleSize, got.SampleSize)
	assert.True(t, saved.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, saved.Distribution, got.Distribution)
	assert.Equal(t, saved.SourceBreakdown, got.SourceBreakdown)
	assert.Equal(t, saved.Category, got.Category)
	assert.Equal(t, saved.StdDev, got.StdDev)
}

func TestSQLiteGetLatestNotFound(t *testing.T) {
	t.Parallel()

	_, err := newTestSQLite(t).GetLatest(context.Background(), "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSQLiteHistoryIsOrderedAndWindowed(t *testing.T) {
	t.Parallel()

	repo := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// saved out of order on purpose
	for _, day := range []int{3, 1, 5, 2} {
		require.NoError(t, repo.Save(ctx, sampleRecord("Acme", float64(day*10), base.AddDate(0, 0, day)), nil))
	}
	require.NoError(t, repo.Save(ctx, sampleRecord("Other", 50, base), nil))

	history, err := repo.GetHistory(ctx, "Acme", base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []float64{20, 30, 50}, []float64{history[0].Score, history[1].Score, history[2].Score})

	latest, err := repo.GetLatest(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 50.0, latest.Score)

	subjects, err := repo.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Other"}, subjects)
}

func TestSQLiteCommentJudgments(t *testing.T) {
	t.Parallel()

	repo := newTestSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, sampleRecord("Acme", 40, now.Add(-time.Hour)), nil))
	require.NoError(t, repo.Save(ctx, sampleRecord("Acme", 60, now), sampleJudgments()))

	all, err := repo.GetCommentJudgments(ctx, "Acme", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	first := all[0]
	want := sampleJudgments()[0]
	assert.Equal(t, want.Comment.Text, first.Comment.Text)
	assert.True(t, want.Comment.Timestamp.Equal(first.Comment.Timestamp))
	assert.Equal(t, "reddit:k1", first.Judgment.CommentRef)
	require.NotNil(t, first.Judgment.ConfidenceHint)
	assert.Equal(t, 0.75, *first.Judgment.ConfidenceHint)
	assert.Equal(t, 0.5, first.Weighted.Weight)
	assert.False(t, first.Excluded)

	assert.True(t, all[1].Excluded)
	assert.Nil(t, all[1].Judgment.ConfidenceHint)
	assert.True(t, all[1].Comment.Timestamp.IsZero())

	limited, err := repo.GetCommentJudgments(ctx, "Acme", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteSaveIsAtomic(t *testing.T) {
	t.Parallel()

	repo := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	record := sampleRecord("Acme", 55, now)
	require.NoError(t, repo.Save(ctx, record, nil))

	// same id again: the record insert fails, nothing from the second call lands
	dup := record
	dup.Subject = "Brand New"
	err := repo.Save(ctx, dup, sampleJudgments())
	require.ErrorIs(t, err, models.ErrRepositoryWrite)

	subjects, err := repo.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, subjects)
}

func TestSQLiteConcurrentSaves(t *testing.T) {
	t.Parallel()

	repo := newTestSQLite(t)
	ctx := context.Background()
	base := time.Now().UTC()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subject := []string{"A", "B"}[i%2]
			errs <- repo.Save(ctx, sampleRecord(subject, float64(i), base.Add(time.Duration(i)*time.Second)), sampleJudgments())
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	history, err := repo.GetHistory(ctx, "A", time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 10)
}
