package sentiment

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
	"github.com/spacesedan/ariss/internal/models"
)

const LexiconName = "vader"

var (
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern  = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
)

func RemoveLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1")
	return urlPattern.ReplaceAllString(input, "")
}

// ConvertMarkdownToText renders markdown and strips the resulting tags, links
// and repeated whitespace.
func ConvertMarkdownToText(input string) string {
	input = RemoveLinks(input)
	output := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	plainText := tagPattern.ReplaceAllString(string(output), " ")
	plainText = strings.Join(strings.Fields(plainText), " ")

	return RemoveLinks(plainText)
}

// Lexicon scores comments with VADER. RawScore is the compound score on the
// unit scale; BiasScore is the emotional intensity of the text.
type Lexicon struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewLexicon() *Lexicon {
	return &Lexicon{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (l *Lexicon) Name() string { return LexiconName }

func (l *Lexicon) Classify(ctx context.Context, comment models.Comment, _ string, _ string) (models.SentimentJudgment, error) {
	if err := ctx.Err(); err != nil {
		return models.SentimentJudgment{}, err
	}

	scores := l.analyzer.PolarityScores(ConvertMarkdownToText(comment.Text))
	compound := scores.Compound
	emotional := 1 - scores.Neutral

	judgment := models.SentimentJudgment{
		CommentRef: comment.Key(),
		RawScore:   compound,
		Scale:      models.ScaleUnit,
		BiasScore:  emotional * math.Abs(compound) * 100,
		Classifier: LexiconName,
	}
	return judgment, judgment.Validate()
}

// Label buckets a compound score the way the lexicon reports it.
func Label(compound float64) string {
	switch {
	case compound >= 0.20:
		return "positive"
	case compound <= -0.20:
		return "negative"
	default:
		return "neutral"
	}
}
