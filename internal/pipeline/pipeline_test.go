package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spacesedan/ariss/internal/collectors"
	"github.com/spacesedan/ariss/internal/db"
	"github.com/spacesedan/ariss/internal/metrics"
	"github.com/spacesedan/ariss/internal/models"
	"github.com/spacesedan/ariss/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClassifier scores a comment by its platform id.
type scriptedClassifier struct {
	scores map[string]float64
	errs   map[string]error
	calls  atomic.Int64

	mu       sync.Mutex
	contexts []string
}

func (s *scriptedClassifier) Name() string { return "scripted" }

func (s *scriptedClassifier) Classify(ctx context.Context, c models.Comment, _ string, subjectContext string) (models.SentimentJudgment, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.contexts = append(s.contexts, subjectContext)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.SentimentJudgment{}, err
	}
	if err := s.errs[c.PlatformID]; err != nil {
		return models.SentimentJudgment{}, err
	}
	score, ok := s.scores[c.PlatformID]
	if !ok {
		score = 50
	}
	return models.SentimentJudgment{
		CommentRef: c.Key(),
		RawScore:   score,
		Scale:      models.ScalePercent,
		Classifier: "scripted",
	}, nil
}

func comment(id string) models.Comment {
	return models.Comment{
		Text:       "five words in this comment",
		Source:     models.SourceReddit,
		PlatformID: id,
		Timestamp:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newRepo(t *testing.T) *db.SQLRepository {
	t.Helper()
	repo, err := db.NewSQLiteRepository(filepath.Join(t.TempDir(), "ariss.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newPipeline(c *scriptedClassifier, m *metrics.Metrics, extra func(*Deps)) *Pipeline {
	deps := Deps{
		Classifier:  c,
		Policy:      scoring.DefaultPolicy(),
		Aggregator:  scoring.NewAggregator(models.ModeWeightedMean, 50, clockwork.NewFakeClockAt(fixedNow)),
		Metrics:     m,
		Concurrency: 4,
	}
	if extra != nil {
		extra(&deps)
	}
	return New(deps)
}

func TestComputeScoreSavesRecordAndAuditRows(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	classifier := &scriptedClassifier{
		scores: map[string]float64{"a": 80, "b": 80, "c": 20},
		errs:   map[string]error{"bad": fmt.Errorf("%w: no sentiment field", models.ErrMalformedResponse)},
	}
	repo := newRepo(t)
	p := newPipeline(classifier, m, nil)

	invalid := comment("empty")
	invalid.Text = "   "
	comments := []models.Comment{comment("a"), comment("b"), comment("c"), comment("bad"), comment("a"), invalid}

	record, err := p.ComputeScore(context.Background(), repo, "Acme", comments, "")
	require.NoError(t, err)

	assert.InDelta(t, 60.0, record.Score, 1e-9)
	assert.Equal(t, 3, record.SampleSize)
	assert.Equal(t, models.Distribution{Positive: 2, Negative: 1}, record.Distribution)
	assert.Equal(t, fixedNow, record.Timestamp)
	assert.Equal(t, int64(4), classifier.calls.Load(), "duplicates and invalid comments are never classified")

	latest, err := repo.GetLatest(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, record.ID, latest.ID)

	audit, err := repo.GetCommentJudgments(context.Background(), "Acme", 0)
	require.NoError(t, err)
	assert.Len(t, audit, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommentsProcessed.WithLabelValues("reddit", metrics.OutcomeMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommentsProcessed.WithLabelValues("reddit", metrics.OutcomeInvalid)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CommentsProcessed.WithLabelValues("reddit", metrics.OutcomeScored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoreRuns.WithLabelValues(metrics.RunSaved)))
}

func TestComputeCategoryScoreStoresCategory(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	classifier := &scriptedClassifier{scores: map[string]float64{"a": 70}}
	record, err := newPipeline(classifier, nil, nil).
		ComputeCategoryScore(context.Background(), repo, "Acme", "Technology", []models.Comment{comment("a")}, "")
	require.NoError(t, err)
	assert.Equal(t, "Technology", record.Category)

	latest, err := repo.GetLatest(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Technology", latest.Category, "the stored record carries the category")
}

func TestComputeScoreEmptyBatchIsNeutral(t *testing.T) {
	t.Parallel()

	repo := newRepo(t)
	record, err := newPipeline(&scriptedClassifier{}, nil, nil).ComputeScore(context.Background(), repo, "Nobody", nil, "")
	require.NoError(t, err)

	assert.Equal(t, scoring.NeutralScore, record.Score)
	assert.Zero(t, record.Confidence)
	assert.Zero(t, record.SampleSize)

	_, err = repo.GetLatest(context.Background(), "Nobody")
	assert.NoError(t, err)
}

func TestComputeScoreAbortsWhenClassifierUnavailable(t *testing.T) {
	t.Parallel()

	classifier := &scriptedClassifier{
		errs: map[string]error{"down": fmt.Errorf("%w: 503 after retries", models.ErrClassifierUnavailable)},
	}
	repo := newRepo(t)

	comments := []models.Comment{comment("down")}
	for i := 0; i < 20; i++ {
		comments = append(comments, comment(fmt.Sprintf("ok-%d", i)))
	}

	_, err := newPipeline(classifier, nil, func(d *Deps) { d.Concurrency = 1 }).
		ComputeScore(context.Background(), repo, "Acme", comments, "")

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageClassify, runErr.Stage)
	assert.Zero(t, runErr.Processed)
	assert.ErrorIs(t, err, models.ErrClassifierUnavailable)

	_, err = repo.GetLatest(context.Background(), "Acme")
	assert.ErrorIs(t, err, models.ErrNotFound, "failed runs save nothing")
}

func TestComputeScoreCancelledRunSavesNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := newRepo(t)

	_, err := newPipeline(&scriptedClassifier{}, nil, nil).
		ComputeScore(ctx, repo, "Acme", []models.Comment{comment("a"), comment("b")}, "")

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageClassify, runErr.Stage)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = repo.GetLatest(context.Background(), "Acme")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type failingRepo struct{ db.ScoreRepository }

func (failingRepo) Save(context.Context, models.ScoreRecord, []models.CommentJudgment) error {
	return fmt.Errorf("%w: disk full", models.ErrRepositoryWrite)
}

func TestComputeScorePersistFailure(t *testing.T) {
	t.Parallel()

	_, err := newPipeline(&scriptedClassifier{}, nil, nil).
		ComputeScore(context.Background(), failingRepo{}, "Acme", []models.Comment{comment("a"), comment("b")}, "")

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StagePersist, runErr.Stage)
	assert.Equal(t, 2, runErr.Processed)
	assert.ErrorIs(t, err, models.ErrRepositoryWrite)
}

type stubCollector struct {
	source   models.Source
	comments []models.Comment
	err      error
	category string
}

func (s *stubCollector) Source() models.Source { return s.source }

func (s *stubCollector) Fetch(context.Context, string, int) ([]models.Comment, error) {
	return s.comments, s.err
}

type categoryCollector struct {
	*stubCollector
}

func (c categoryCollector) FetchCategory(_ context.Context, _ string, category string, _ int) ([]models.Comment, error) {
	c.category = category
	return c.comments, c.err
}

type staticContext string

func (s staticContext) GetContext(context.Context, string) (string, error) { return string(s), nil }

type recordingPublisher struct {
	mu      sync.Mutex
	records []models.ScoreRecord
}

func (r *recordingPublisher) Publish(_ context.Context, record models.ScoreRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return errors.New("publishing is best effort")
}

func TestScoreSubjectCollectsFromEverySource(t *testing.T) {
	t.Parallel()

	yt := comment("y1")
	yt.Source = models.SourceYouTube

	reddit := &stubCollector{source: models.SourceReddit, comments: []models.Comment{comment("r1"), comment("r2")}}
	publisher := &recordingPublisher{}
	classifier := &scriptedClassifier{scores: map[string]float64{"r1": 70, "r2": 70, "y1": 70}}

	p := newPipeline(classifier, nil, func(d *Deps) {
		d.Collectors = []collectors.Collector{
			categoryCollector{reddit},
			&stubCollector{source: models.SourceYouTube, comments: []models.Comment{yt}},
			&stubCollector{source: models.SourceTwitter, err: errors.New("rate limited")},
		}
		d.Context = staticContext("Acme announced layoffs")
		d.Publisher = publisher
	})

	repo := newRepo(t)
	record, err := p.ScoreSubject(context.Background(), repo, "Acme", "Technology", 50)
	require.NoError(t, err)

	assert.Equal(t, 3, record.SampleSize)
	assert.Equal(t, "Technology", record.Category)
	assert.Equal(t, map[models.Source]int{models.SourceReddit: 2, models.SourceYouTube: 1}, record.SourceBreakdown)
	assert.InDelta(t, 70.0, record.Score, 1e-9)
	assert.Equal(t, "Technology", reddit.category)
	for _, c := range classifier.contexts {
		assert.Equal(t, "Acme announced layoffs", c)
	}
	require.Len(t, publisher.records, 1, "publish failures do not fail the run")
	assert.Equal(t, record.ID, publisher.records[0].ID)
}

func TestScoreSubjectFailsWhenEveryCollectorFails(t *testing.T) {
	t.Parallel()

	p := newPipeline(&scriptedClassifier{}, nil, func(d *Deps) {
		d.Collectors = []collectors.Collector{
			&stubCollector{source: models.SourceReddit, err: errors.New("401")},
			&stubCollector{source: models.SourceTwitter, err: errors.New("429")},
		}
	})

	_, err := p.ScoreSubject(context.Background(), nil, "Acme", "", 10)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageCollect, runErr.Stage)
	assert.ErrorContains(t, err, "429")
}
