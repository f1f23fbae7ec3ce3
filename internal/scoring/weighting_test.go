package scoring

import (
	"strings"
	"testing"

	"github.com/spacesedan/ariss/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func redditComment(text string, engagement int) models.Comment {
	return models.Comment{Text: text, Source: models.SourceReddit, PlatformID: "p1", Engagement: engagement}
}

func percent(raw, bias float64) models.SentimentJudgment {
	return models.SentimentJudgment{CommentRef: "reddit:p1", RawScore: raw, Scale: models.ScalePercent, BiasScore: bias}
}

func TestWeighRescalesUnitScaleOnce(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	unit := models.SentimentJudgment{CommentRef: "reddit:p1", RawScore: 0.5, Scale: models.ScaleUnit}

	w, ok := p.Weigh(unit, redditComment(words(10), 0))
	require.True(t, ok)
	assert.Equal(t, 75.0, w.AdjustedSentiment)

	w, ok = p.Weigh(percent(75, 0), redditComment(words(10), 0))
	require.True(t, ok)
	assert.Equal(t, 75.0, w.AdjustedSentiment, "percent scores pass through unchanged")
}

func TestWeighExtremeBiasAndZeroEngagementKeepsFloor(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	w, ok := p.Weigh(percent(90, 100), redditComment(words(100), 0))
	require.True(t, ok)
	assert.Greater(t, w.Weight, 0.0)
	assert.GreaterOrEqual(t, w.Weight, p.BiasFloor*1.0)
	assert.Equal(t, p.BiasFloor, w.BiasDiscount)
	assert.Equal(t, 1.0, w.Credibility)
	assert.Equal(t, 1.0, w.LengthFactor)
}

func TestWeighNeverDropsBelowBiasFloor(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	for _, src := range models.Sources {
		for _, n := range []int{1, 3, 75, 500} {
			c := models.Comment{Text: words(n), Source: src, PlatformID: "x", Engagement: 0}
			w, ok := p.Weigh(percent(90, 100), c)
			require.True(t, ok, "%s words=%d", src, n)
			assert.GreaterOrEqual(t, w.Weight, p.BiasFloor*1.0, "%s words=%d", src, n)
		}
	}

	short, _ := p.Weigh(percent(90, 20), redditComment("lol", 0))
	long, _ := p.Weigh(percent(90, 20), redditComment(words(75), 0))
	assert.Less(t, short.Weight, long.Weight, "short comments still weigh less")
}

func TestWeighIsAlwaysPositiveForEnabledSources(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	for _, src := range models.Sources {
		for _, bias := range []float64{0, 50, 99.9, 100} {
			for _, n := range []int{1, 3, 75, 500} {
				c := models.Comment{Text: words(n), Source: src, PlatformID: "x", Engagement: 0}
				w, ok := p.Weigh(percent(50, bias), c)
				require.True(t, ok, "%s bias=%v words=%d", src, bias, n)
				assert.Greater(t, w.Weight, 0.0)
			}
		}
	}
}

func TestWeighExcludesDisabledSource(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	p.SourceTrust[models.SourceTwitter] = 0
	c := models.Comment{Text: words(20), Source: models.SourceTwitter, PlatformID: "t"}

	_, ok := p.Weigh(percent(50, 10), c)
	assert.False(t, ok)
}

func TestWeighExcludesInvalidJudgment(t *testing.T) {
	t.Parallel()

	_, ok := DefaultPolicy().Weigh(percent(120, 10), redditComment(words(5), 1))
	assert.False(t, ok)
}

func TestCredibilityDampensEngagement(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	zero := p.Credibility(redditComment("a", 0))
	some := p.Credibility(redditComment("a", 10))
	lots := p.Credibility(redditComment("a", 1_000_000))

	assert.Equal(t, 1.0, zero)
	assert.Greater(t, some, zero)
	assert.Equal(t, p.MaxEngagementBoost, lots)

	for _, src := range models.Sources {
		assert.Equal(t, 1.0, p.Credibility(models.Comment{Source: src}), "default trust for %s", src)
	}

	p.SourceTrust[models.SourceYouTube] = 0.85
	assert.Equal(t, 0.85, p.Credibility(models.Comment{Source: models.SourceYouTube}))

	unknownTrust := Policy{EngagementScale: 0.15, MaxEngagementBoost: 2}
	assert.Equal(t, 1.0, unknownTrust.Credibility(redditComment("a", 0)), "missing trust defaults to 1")
}

func TestLengthFactorIsMonotoneAndSaturates(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	prev := 0.0
	for n := 0; n <= 200; n++ {
		f := p.LengthFactor(n)
		assert.GreaterOrEqual(t, f, prev, "n=%d", n)
		assert.GreaterOrEqual(t, f, p.LengthFloor)
		assert.LessOrEqual(t, f, 1.0)
		prev = f
	}
	assert.Equal(t, p.LengthFloor, p.LengthFactor(0))
	assert.Equal(t, 1.0, p.LengthFactor(75))
	assert.Equal(t, 1.0, p.LengthFactor(10_000))
	assert.Less(t, p.LengthFactor(2), p.LengthFactor(30))
}
