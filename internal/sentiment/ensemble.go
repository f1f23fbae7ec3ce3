package sentiment

import (
	"context"
	"fmt"

	"github.com/spacesedan/ariss/internal/models"
)

const EnsembleName = "ensemble"

// Ensemble blends an LLM judgment with a lexicon judgment. Its RawScore is on
// the percent scale; bias, context and confidence come from the LLM.
type Ensemble struct {
	llm       Classifier
	lexicon   Classifier
	llmWeight float64
}

func NewEnsemble(llm, lexicon Classifier, llmWeight float64) *Ensemble {
	return &Ensemble{llm: llm, lexicon: lexicon, llmWeight: clamp(llmWeight, 0, 1)}
}

func (e *Ensemble) Name() string { return EnsembleName }

func (e *Ensemble) Classify(ctx context.Context, comment models.Comment, subject, subjectContext string) (models.SentimentJudgment, error) {
	primary, err := e.llm.Classify(ctx, comment, subject, subjectContext)
	if err != nil {
		return models.SentimentJudgment{}, err
	}
	secondary, err := e.lexicon.Classify(ctx, comment, subject, subjectContext)
	if err != nil {
		return models.SentimentJudgment{}, err
	}

	p, err := percentOf(primary)
	if err != nil {
		return models.SentimentJudgment{}, err
	}
	s, err := percentOf(secondary)
	if err != nil {
		return models.SentimentJudgment{}, err
	}

	// Both inputs are already on the percent scale, so the blend is too and
	// weighting passes it through unchanged. Out-of-range inputs fail Validate.
	judgment := models.SentimentJudgment{
		CommentRef:      comment.Key(),
		RawScore:        s + e.llmWeight*(p-s),
		Scale:           models.ScalePercent,
		BiasScore:       primary.BiasScore,
		ConfidenceHint:  primary.ConfidenceHint,
		DetectedContext: primary.DetectedContext,
		Classifier:      EnsembleName,
	}
	return judgment, judgment.Validate()
}

func percentOf(j models.SentimentJudgment) (float64, error) {
	switch j.Scale {
	case models.ScalePercent:
		return j.RawScore, nil
	case models.ScaleUnit:
		return ToPercent(j.RawScore), nil
	default:
		return 0, fmt.Errorf("%w: unknown scale %q from %s", models.ErrMalformedResponse, j.Scale, j.Classifier)
	}
}
