package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spacesedan/ariss/internal/metrics"
	"github.com/spacesedan/ariss/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(subject string, score float64) models.ScoreRecord {
	return models.ScoreRecord{
		ID:         uuid.New(),
		Subject:    subject,
		Score:      score,
		SampleSize: 3,
		Timestamp:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Mode:       models.ModeWeightedMean,
	}
}

type fakeProducer struct {
	key   string
	value []byte
	err   error
}

func (f *fakeProducer) Publish(_ context.Context, key string, value []byte) error {
	f.key, f.value = key, value
	return f.err
}

func TestKafkaPublishesKeyedEvent(t *testing.T) {
	t.Parallel()

	p := &fakeProducer{}
	require.NoError(t, NewKafka(p).Publish(context.Background(), record("Acme", 72)))

	assert.Equal(t, "Acme", p.key)
	var ev ScoreEvent
	require.NoError(t, json.Unmarshal(p.value, &ev))
	assert.Equal(t, EventScore, ev.Type)
	assert.Equal(t, "Very Positive", ev.Label)
	assert.Equal(t, 72.0, ev.Record.Score)
}

func TestMultiJoinsErrors(t *testing.T) {
	t.Parallel()

	ok := &fakeProducer{}
	failing := &fakeProducer{err: errors.New("broker down")}
	err := Multi{NewKafka(failing), NewKafka(ok)}.Publish(context.Background(), record("Acme", 50))

	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, "Acme", ok.key, "later publishers still run")
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubStreamsMatchingSubjects(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	hub := NewHub(m, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	all := dial(t, srv, "")
	acme := dial(t, srv, "?subject=acme")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WebSocketClients))

	require.NoError(t, hub.Publish(context.Background(), record("Beta", 40)))
	require.NoError(t, hub.Publish(context.Background(), record("Acme", 60)))

	var ev ScoreEvent
	require.NoError(t, acme.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, acme.ReadJSON(&ev))
	assert.Equal(t, "Acme", ev.Record.Subject, "filtered clients skip other subjects")

	require.NoError(t, all.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, all.ReadJSON(&ev))
	assert.Equal(t, "Beta", ev.Record.Subject)
	require.NoError(t, all.ReadJSON(&ev))
	assert.Equal(t, "Acme", ev.Record.Subject)

	require.NoError(t, all.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}
