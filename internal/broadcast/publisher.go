package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spacesedan/ariss/internal/models"
)

const EventScore = "score"

// Publisher announces saved score records. Publishing is best effort: callers
// log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, record models.ScoreRecord) error
}

// ScoreEvent is the payload sent to Kafka and WebSocket clients.
type ScoreEvent struct {
	Type   string             `json:"type"`
	Label  string             `json:"label"`
	Record models.ScoreRecord `json:"record"`
}

func NewScoreEvent(record models.ScoreRecord) ScoreEvent {
	return ScoreEvent{Type: EventScore, Label: models.Label(record.Score), Record: record}
}

func encodeEvent(record models.ScoreRecord) ([]byte, error) {
	b, err := json.Marshal(NewScoreEvent(record))
	if err != nil {
		return nil, fmt.Errorf("encode score event: %w", err)
	}
	return b, nil
}

// Multi fans a record out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, record models.ScoreRecord) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type MessageProducer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Kafka publishes score events keyed by subject, so one subject's records
// stay ordered within a partition.
type Kafka struct {
	producer MessageProducer
}

func NewKafka(producer MessageProducer) *Kafka {
	return &Kafka{producer: producer}
}

func (k *Kafka) Publish(ctx context.Context, record models.ScoreRecord) error {
	value, err := encodeEvent(record)
	if err != nil {
		return err
	}
	return k.producer.Publish(ctx, record.Subject, value)
}
