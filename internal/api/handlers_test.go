package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/ariss/internal/db"
	"github.com/spacesedan/ariss/internal/models"
	"github.com/spacesedan/ariss/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	subject, category string
	limit             int
	err               error
}

func (f *fakeScorer) ScoreSubject(ctx context.Context, repo db.ScoreRepository, subject, category string, limit int) (models.ScoreRecord, error) {
	f.subject, f.category, f.limit = subject, category, limit
	if f.err != nil {
		return models.ScoreRecord{}, f.err
	}
	r := record(subject, 58, time.Now().UTC())
	r.Category = category
	return r, repo.Save(ctx, r, nil)
}

func record(subject string, score float64, ts time.Time) models.ScoreRecord {
	return models.ScoreRecord{
		ID:         uuid.New(),
		Subject:    subject,
		Score:      score,
		Confidence: 40,
		SampleSize: 12,
		Timestamp:  ts,
		Mode:       models.ModeWeightedMean,
	}
}

func newTestServer(t *testing.T, scorer Scorer) (*Server, db.ScoreRepository) {
	t.Helper()
	repo, err := db.NewSQLiteRepository(filepath.Join(t.TempDir(), "ariss.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ariss_score_runs_total 1\n"))
	})
	return NewServer(Options{Repo: repo, Scorer: scorer, Metrics: metrics}), repo
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestLatestAndHistory(t *testing.T) {
	t.Parallel()

	s, repo := newTestServer(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.Save(ctx, record("Acme Corp", 40, now.AddDate(0, 0, -40)), nil))
	require.NoError(t, repo.Save(ctx, record("Acme Corp", 50, now.AddDate(0, 0, -3)), nil))
	require.NoError(t, repo.Save(ctx, record("Acme Corp", 72, now.Add(-time.Hour)), nil))

	rec := do(t, s, http.MethodGet, "/api/subjects/Acme%20Corp/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest scoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, 72.0, latest.Score)
	assert.Equal(t, "Very Positive", latest.Label)

	rec = do(t, s, http.MethodGet, "/api/subjects/Acme%20Corp/history?days=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []scoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, 50.0, history[0].Score)
	assert.Equal(t, "Neutral", history[0].Label)

	rec = do(t, s, http.MethodGet, "/api/subjects/Acme%20Corp/history?days=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/subjects/Nobody/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSearchAndTrending(t *testing.T) {
	t.Parallel()

	s, repo := newTestServer(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.Save(ctx, record("Acme", 30, now.AddDate(0, 0, -2)), nil))
	require.NoError(t, repo.Save(ctx, record("Acme", 55, now.Add(-time.Hour)), nil))
	require.NoError(t, repo.Save(ctx, record("Beta", 60, now.AddDate(0, 0, -1)), nil))

	rec := do(t, s, http.MethodGet, "/api/subjects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []models.SubjectSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "Acme", summaries[0].Subject, "most recently updated first")

	rec = do(t, s, http.MethodGet, "/api/subjects/search?q=bet", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "Beta", summaries[0].Subject)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/subjects/search", "").Code)

	rec = do(t, s, http.MethodGet, "/api/subjects/trending?days=7&min_change=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var trending []models.TrendingSubject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trending))
	require.Len(t, trending, 1)
	assert.Equal(t, "Acme", trending[0].Subject)
	assert.Equal(t, "up", trending[0].Direction)
	assert.InDelta(t, 25.0, trending[0].Change, 1e-9)
}

func TestCalculate(t *testing.T) {
	t.Parallel()

	scorer := &fakeScorer{}
	s, repo := newTestServer(t, scorer)

	rec := do(t, s, http.MethodPost, "/api/subjects/Acme/calculate", `{"category":"Technology","limit":25}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Acme", scorer.subject)
	assert.Equal(t, "Technology", scorer.category)
	assert.Equal(t, 25, scorer.limit)

	latest, err := repo.GetLatest(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, 58.0, latest.Score)

	rec = do(t, s, http.MethodPost, "/api/subjects/Acme/calculate", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, defaultLimit, scorer.limit)
}

func TestCalculateReportsFailedStage(t *testing.T) {
	t.Parallel()

	scorer := &fakeScorer{err: &pipeline.RunError{
		Subject:   "Acme",
		Stage:     pipeline.StageClassify,
		Processed: 7,
		Err:       models.ErrClassifierUnavailable,
	}}
	s, _ := newTestServer(t, scorer)

	rec := do(t, s, http.MethodPost, "/api/subjects/Acme/calculate", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "classify", body["stage"])
	assert.Equal(t, 7.0, body["processed"])

	scorer.err = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodPost, "/api/subjects/Acme/calculate", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health/live", "").Code)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ariss_score_runs_total")

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/subjects/Acme/calculate", "").Code,
		"calculation is disabled without a scorer")
}
