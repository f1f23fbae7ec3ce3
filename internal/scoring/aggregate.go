package scoring

import (
	"math"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spacesedan/ariss/internal/models"
)

const (
	NeutralScore = 50.0

	positiveAbove = 60.0
	negativeBelow = 40.0

	// maxStdDev is the largest possible population standard deviation on a
	// 0..100 scale.
	maxStdDev = 50.0
)

// Aggregator folds weighted judgments into a ScoreRecord. The result does not
// depend on input order.
type Aggregator struct {
	Mode      models.AggregationMode
	SizeScale float64
	Clock     clockwork.Clock
}

func NewAggregator(mode models.AggregationMode, sizeScale float64, clock clockwork.Clock) *Aggregator {
	if !mode.Valid() {
		mode = models.ModeWeightedMean
	}
	if sizeScale <= 0 {
		sizeScale = 50
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Aggregator{Mode: mode, SizeScale: sizeScale, Clock: clock}
}

func (a *Aggregator) Aggregate(subject string, judgments []models.WeightedJudgment) models.ScoreRecord {
	record := models.ScoreRecord{
		ID:        uuid.New(),
		Subject:   subject,
		Score:     NeutralScore,
		Timestamp: a.Clock.Now().UTC().Round(0),
		Mode:      a.Mode,
	}

	usable := make([]models.WeightedJudgment, 0, len(judgments))
	for _, j := range judgments {
		if j.Weight > Epsilon && !math.IsInf(j.Weight, 0) && !math.IsNaN(j.AdjustedSentiment) {
			usable = append(usable, j)
		}
	}
	if len(usable) == 0 {
		return record
	}

	n := float64(len(usable))
	record.SampleSize = len(usable)
	record.SourceBreakdown = make(map[models.Source]int)
	record.MinScore = math.Inf(1)
	record.MaxScore = math.Inf(-1)

	var sum, biasSum, credSum, lengthSum float64
	for _, j := range usable {
		s := j.AdjustedSentiment
		sum += s
		biasSum += j.BiasScore
		credSum += j.Credibility
		lengthSum += j.LengthFactor
		record.MinScore = math.Min(record.MinScore, s)
		record.MaxScore = math.Max(record.MaxScore, s)
		record.SourceBreakdown[j.Source]++

		switch {
		case s > positiveAbove:
			record.Distribution.Positive++
		case s < negativeBelow:
			record.Distribution.Negative++
		default:
			record.Distribution.Neutral++
		}
	}

	mean := sum / n
	var sq float64
	for _, j := range usable {
		d := j.AdjustedSentiment - mean
		sq += d * d
	}
	record.Variance = sq / n
	record.StdDev = math.Sqrt(record.Variance)
	record.MeanBias = biasSum / n
	record.MeanCredibility = credSum / n
	record.MeanLengthFactor = lengthSum / n

	switch a.Mode {
	case models.ModeClassifyCount:
		d := record.Distribution
		record.Score = clampScore(NeutralScore + NeutralScore*float64(d.Positive-d.Negative)/n)
	default:
		record.Score = clampScore(WeightedMean(usable))
	}

	record.Confidence = Confidence(record.SampleSize, record.StdDev, a.SizeScale)
	return record
}

// WeightedMean is sum(s*w)/sum(w). Weights are rescaled by the largest weight
// first, so equal weights reduce to a plain mean.
func WeightedMean(judgments []models.WeightedJudgment) float64 {
	var maxWeight float64
	for _, j := range judgments {
		maxWeight = math.Max(maxWeight, j.Weight)
	}
	if maxWeight <= 0 {
		return NeutralScore
	}

	var num, den float64
	for _, j := range judgments {
		w := j.Weight / maxWeight
		num += j.AdjustedSentiment * w
		den += w
	}
	return num / den
}

// Confidence is size x agreement, where size saturates as 100(1-e^(-n/scale))
// and agreement falls linearly to 0 as the standard deviation reaches 50.
func Confidence(sampleSize int, stdDev, sizeScale float64) float64 {
	if sampleSize <= 0 {
		return 0
	}
	if sizeScale <= 0 {
		sizeScale = 50
	}
	size := 100 * (1 - math.Exp(-float64(sampleSize)/sizeScale))
	agreement := 1 - math.Min(1, math.Max(0, stdDev)/maxStdDev)
	return math.Min(100, math.Max(0, size*agreement))
}

func clampScore(s float64) float64 {
	return math.Min(100, math.Max(0, s))
}
