package models

import (
	"time"

	"github.com/google/uuid"
)

type AggregationMode string

const (
	ModeWeightedMean  AggregationMode = "weighted_mean"
	ModeClassifyCount AggregationMode = "classify_count"
)

func (m AggregationMode) Valid() bool {
	return m == ModeWeightedMean || m == ModeClassifyCount
}

// Distribution counts adjusted sentiments by band. The three counts always sum
// to the record's SampleSize.
type Distribution struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

func (d Distribution) Total() int {
	return d.Positive + d.Neutral + d.Negative
}

// ScoreRecord is one aggregate result for a subject at a point in time.
// Records are append-only.
type ScoreRecord struct {
	ID           uuid.UUID       `json:"id"`
	Subject      string          `json:"subject"`
	Score        float64         `json:"score"`
	Confidence   float64         `json:"confidence"`
	SampleSize   int             `json:"sample_size"`
	Distribution Distribution    `json:"distribution"`
	MeanBias     float64         `json:"mean_bias"`
	Timestamp    time.Time       `json:"timestamp"`
	Mode         AggregationMode `json:"mode"`

	Variance         float64        `json:"variance"`
	StdDev           float64        `json:"std_dev"`
	MinScore         float64        `json:"min_score"`
	MaxScore         float64        `json:"max_score"`
	MeanCredibility  float64        `json:"mean_credibility"`
	MeanLengthFactor float64        `json:"mean_length_factor"`
	SourceBreakdown  map[Source]int `json:"source_breakdown,omitempty"`
	Category         string         `json:"category,omitempty"`
}

// Label buckets a score for display.
func Label(score float64) string {
	switch {
	case score >= 70:
		return "Very Positive"
	case score >= 55:
		return "Positive"
	case score >= 45:
		return "Neutral"
	case score >= 30:
		return "Negative"
	default:
		return "Very Negative"
	}
}

// SubjectSummary is a subject with its most recent score.
type SubjectSummary struct {
	Subject     string    `json:"subject"`
	Category    string    `json:"category,omitempty"`
	LatestScore float64   `json:"latest_score"`
	Confidence  float64   `json:"confidence"`
	SampleSize  int       `json:"sample_size"`
	LastUpdated time.Time `json:"last_updated"`
}

// TrendingSubject reports how far a subject's score moved inside a window.
type TrendingSubject struct {
	Subject     string  `json:"subject"`
	Category    string  `json:"category,omitempty"`
	LatestScore float64 `json:"latest_score"`
	Change      float64 `json:"change"`
	Direction   string  `json:"direction"`
}
