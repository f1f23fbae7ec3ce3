package models

import (
	"fmt"
	"math"
)

// Scale names the range a classifier reports RawScore on.
type Scale string

const (
	// ScaleUnit is -1..1, the native VADER compound range.
	ScaleUnit Scale = "unit"
	// ScalePercent is 0..100.
	ScalePercent Scale = "percent"
)

func (s Scale) Bounds() (float64, float64, error) {
	switch s {
	case ScaleUnit:
		return -1, 1, nil
	case ScalePercent:
		return 0, 100, nil
	default:
		return 0, 0, fmt.Errorf("unknown scale %q", s)
	}
}

// SentimentJudgment is the classifier output for a single comment.
type SentimentJudgment struct {
	CommentRef      string   `json:"comment_ref"`
	RawScore        float64  `json:"raw_score"`
	Scale           Scale    `json:"scale"`
	BiasScore       float64  `json:"bias_score"`
	ConfidenceHint  *float64 `json:"confidence_hint,omitempty"`
	DetectedContext string   `json:"detected_context,omitempty"`
	Classifier      string   `json:"classifier"`
}

// Validate reports out-of-bound values. Judgments are never clamped: a value
// outside its scale is treated as a malformed upstream response.
func (j SentimentJudgment) Validate() error {
	lo, hi, err := j.Scale.Bounds()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !finite(j.RawScore) || j.RawScore < lo || j.RawScore > hi {
		return fmt.Errorf("%w: raw score %v outside [%v, %v]", ErrMalformedResponse, j.RawScore, lo, hi)
	}
	if !finite(j.BiasScore) || j.BiasScore < 0 || j.BiasScore > 100 {
		return fmt.Errorf("%w: bias score %v outside [0, 100]", ErrMalformedResponse, j.BiasScore)
	}
	if j.ConfidenceHint != nil && !finite(*j.ConfidenceHint) {
		return fmt.Errorf("%w: confidence hint is not a number", ErrMalformedResponse)
	}
	return nil
}

// WeightedJudgment is a judgment after the weighting policy ran. Weight is
// always strictly positive; excluded judgments never become a WeightedJudgment.
type WeightedJudgment struct {
	CommentRef        string  `json:"comment_ref"`
	Source            Source  `json:"source"`
	AdjustedSentiment float64 `json:"adjusted_sentiment"`
	Weight            float64 `json:"weight"`
	BiasScore         float64 `json:"bias_score"`

	Credibility  float64 `json:"credibility"`
	BiasDiscount float64 `json:"bias_discount"`
	LengthFactor float64 `json:"length_factor"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
