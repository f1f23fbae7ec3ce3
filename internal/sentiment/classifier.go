package sentiment

import (
	"context"

	"github.com/spacesedan/ariss/internal/models"
)

// Classifier turns one comment into a SentimentJudgment. Implementations
// document the scale they report on and return errors wrapping
// models.ErrClassifierUnavailable or models.ErrMalformedResponse.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, comment models.Comment, subject, subjectContext string) (models.SentimentJudgment, error)
}

// ToPercent rescales a unit-scale score (-1..1) to 0..100.
func ToPercent(raw float64) float64 {
	return (raw + 1) * 50
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
