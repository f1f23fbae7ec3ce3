package scoring

import (
	"math"

	"github.com/spacesedan/ariss/internal/models"
)

// Epsilon is the weight at or below which a judgment is excluded rather than
// counted with a near-zero weight.
const Epsilon = 1e-9

// Policy turns a judgment into a weighted judgment. The zero value is not
// usable; start from DefaultPolicy.
type Policy struct {
	// SourceTrust multiplies credibility per source. Missing sources use 1.0;
	// a trust of 0 disables a source.
	SourceTrust        map[models.Source]float64
	EngagementScale    float64
	MaxEngagementBoost float64
	BiasFloor          float64
	MaxMeaningfulWords int
	LengthFloor        float64
}

func DefaultPolicy() Policy {
	return Policy{
		SourceTrust: map[models.Source]float64{
			models.SourceReddit:  1.0,
			models.SourceYouTube: 1.0,
			models.SourceTwitter: 1.0,
			models.SourceCustom:  1.0,
		},
		EngagementScale:    0.15,
		MaxEngagementBoost: 2.0,
		BiasFloor:          0.05,
		MaxMeaningfulWords: 75,
		LengthFloor:        0.1,
	}
}

// Weigh computes base x credibility x max(BiasFloor, bias discount x length
// factor). Credibility is at least the source trust, so a fully biased or very
// short comment keeps BiasFloor x base x trust. The second return is false
// when the judgment is excluded. This is the only place a unit-scale score is
// rescaled to 0..100.
func (p Policy) Weigh(judgment models.SentimentJudgment, comment models.Comment) (models.WeightedJudgment, bool) {
	if judgment.Validate() != nil {
		return models.WeightedJudgment{}, false
	}

	adjusted := judgment.RawScore
	if judgment.Scale == models.ScaleUnit {
		adjusted = (judgment.RawScore + 1) * 50
	}

	credibility := p.Credibility(comment)
	biasDiscount := p.BiasDiscount(judgment.BiasScore)
	lengthFactor := p.LengthFactor(comment.WordCount())

	weight := credibility * math.Max(p.BiasFloor, biasDiscount*lengthFactor)
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= Epsilon {
		return models.WeightedJudgment{}, false
	}

	return models.WeightedJudgment{
		CommentRef:        judgment.CommentRef,
		Source:            comment.Source,
		AdjustedSentiment: adjusted,
		Weight:            weight,
		BiasScore:         judgment.BiasScore,
		Credibility:       credibility,
		BiasDiscount:      biasDiscount,
		LengthFactor:      lengthFactor,
	}, true
}

// Credibility is the source trust times a logarithmic engagement boost. The
// boost is at least 1, so zero engagement never lowers the weight.
func (p Policy) Credibility(comment models.Comment) float64 {
	trust := 1.0
	if t, ok := p.SourceTrust[comment.Source]; ok {
		trust = t
	}
	if trust <= 0 {
		return 0
	}

	engagement := math.Max(0, float64(comment.Engagement))
	boost := 1 + p.EngagementScale*math.Log1p(engagement)
	if p.MaxEngagementBoost >= 1 {
		boost = math.Min(p.MaxEngagementBoost, boost)
	}
	return trust * boost
}

func (p Policy) BiasDiscount(bias float64) float64 {
	return math.Max(p.BiasFloor, 1-bias/100)
}

// LengthFactor grows with ln(1+words) and saturates at MaxMeaningfulWords.
func (p Policy) LengthFactor(words int) float64 {
	limit := p.MaxMeaningfulWords
	if limit < 1 {
		limit = 1
	}
	f := math.Log1p(float64(max(words, 0))) / math.Log1p(float64(limit))
	return math.Min(1, math.Max(p.LengthFloor, f))
}
