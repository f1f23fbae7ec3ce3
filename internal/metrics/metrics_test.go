package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.Collected("reddit", 12)
	m.Comment("reddit", OutcomeScored)
	m.Comment("reddit", OutcomeScored)
	m.Comment("youtube", OutcomeMalformed)
	m.Run(RunSaved)
	m.Score("Acme", 61.5)
	m.Classified(150 * time.Millisecond)
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()

	assert.Equal(t, 12.0, testutil.ToFloat64(m.CommentsCollected.WithLabelValues("reddit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommentsProcessed.WithLabelValues("reddit", OutcomeScored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommentsProcessed.WithLabelValues("youtube", OutcomeMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoreRuns.WithLabelValues(RunSaved)))
	assert.Equal(t, 61.5, testutil.ToFloat64(m.LatestScore.WithLabelValues("Acme")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebSocketClients))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ClassifyDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.Collected("reddit", 1)
		m.Comment("reddit", OutcomeScored)
		m.Run(RunSaved)
		m.Score("Acme", 50)
		m.Classified(time.Second)
		m.ClientConnected()
		m.ClientDisconnected()
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	m := New(reg)
	m.Run(RunPersistError)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ariss_score_runs_total{outcome="persist_error"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
