package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spacesedan/ariss/internal/models"
)

const (
	LLMName = "openai"

	llmMaxTokens = 400
	maxBackoff   = 32 * time.Second
)

const systemPrompt = `You are a calibrated sentiment analyst. You score internet comments about a subject objectively.

Rules:
- Do NOT default to 50 (neutral) for ambiguous or mild comments.
- Negative criticism and complaints should score well BELOW 50.
- Positive praise and enthusiasm should score well ABOVE 50.
- Only score near 50 if the comment is genuinely mixed or neutral.
- Strong emotions in either direction are valid signals, preserve them.

Sentiment scale:
  0-20  : Extremely negative (rage, strong condemnation)
  21-35 : Clearly negative (criticism, disappointment)
  36-45 : Mildly negative (skepticism, mild complaint)
  46-54 : Genuinely neutral or evenly mixed
  55-64 : Mildly positive (cautious optimism, tentative approval)
  65-79 : Clearly positive (praise, approval)
  80-100: Extremely positive (enthusiasm, strong endorsement)

Bias scale:
  0-30  : Objective, factual, balanced
  31-60 : Opinion-based, some emotional language
  61-100: Extreme, conspiratorial, purely emotional or reactionary

Return ONLY this JSON object:
{
  "word_sentiment_check": "<the 3 most sentiment-bearing words or phrases and whether each is positive or negative>",
  "reasoning": "<one sentence>",
  "context": "<which aspect of the subject the comment is about, a few words>",
  "sentiment": <integer 0-100>,
  "bias_score": <integer 0-100>,
  "confidence": <number 0-1, how sure you are>
}`

// ChatCompleter is the part of the OpenAI client the LLM classifier uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type LLMOptions struct {
	Model          string
	Temperature    float32
	MaxRetries     int
	InitialBackoff time.Duration
}

// LLM asks a chat model for a calibrated 0..100 sentiment and bias score.
// RawScore is on the percent scale.
type LLM struct {
	client ChatCompleter
	opts   LLMOptions
}

func NewLLM(client ChatCompleter, opts LLMOptions) *LLM {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	return &LLM{client: client, opts: opts}
}

func (l *LLM) Name() string { return LLMName }

func (l *LLM) Classify(ctx context.Context, comment models.Comment, subject, subjectContext string) (models.SentimentJudgment, error) {
	resp, err := l.complete(ctx, buildChatMessages(comment, subject, subjectContext))
	if err != nil {
		return models.SentimentJudgment{}, err
	}
	if len(resp.Choices) == 0 {
		return models.SentimentJudgment{}, fmt.Errorf("%w: no choices returned", models.ErrMalformedResponse)
	}

	raw := resp.Choices[0].Message.Content
	var parsed models.OpenAISentimentResponse
	if err := json.Unmarshal([]byte(cleanOpenAIResponse(raw)), &parsed); err != nil {
		slog.Warn("[LLMClassifier] Failed to unmarshal response",
			slog.String("comment", comment.Key()),
			slog.String("raw_response", raw))
		return models.SentimentJudgment{}, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	if parsed.Sentiment == nil || parsed.BiasScore == nil {
		return models.SentimentJudgment{}, fmt.Errorf("%w: missing sentiment or bias_score", models.ErrMalformedResponse)
	}

	detected := strings.TrimSpace(parsed.Context)
	if detected == "" {
		detected = strings.TrimSpace(parsed.Reasoning)
	}

	judgment := models.SentimentJudgment{
		CommentRef:      comment.Key(),
		RawScore:        *parsed.Sentiment,
		Scale:           models.ScalePercent,
		BiasScore:       *parsed.BiasScore,
		ConfidenceHint:  parsed.Confidence,
		DetectedContext: detected,
		Classifier:      LLMName,
	}
	if err := judgment.Validate(); err != nil {
		return models.SentimentJudgment{}, err
	}
	return judgment, nil
}

// complete retries transient failures with exponential backoff. Once the
// budget is spent, or on a permanent failure such as bad credentials, the
// error wraps models.ErrClassifierUnavailable.
func (l *LLM) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (openai.ChatCompletionResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       l.opts.Model,
		Messages:    messages,
		Temperature: l.opts.Temperature,
		MaxTokens:   llmMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var lastErr error
	backoff := l.opts.InitialBackoff
	for attempt := 1; attempt <= l.opts.MaxRetries; attempt++ {
		start := time.Now()
		resp, err := l.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return openai.ChatCompletionResponse{}, fmt.Errorf("%w: %w", models.ErrClassifierUnavailable, ctxErr)
		}
		if !retryable(err) {
			break
		}
		if attempt == l.opts.MaxRetries {
			break
		}

		slog.Warn("[LLMClassifier] Failed to get a response from OpenAI, retrying...",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("elapsed", time.Since(start)),
			slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, fmt.Errorf("%w: %w", models.ErrClassifierUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return openai.ChatCompletionResponse{}, fmt.Errorf("%w: %v", models.ErrClassifierUnavailable, lastErr)
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	// transport level failure
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func buildChatMessages(comment models.Comment, subject, subjectContext string) []openai.ChatCompletionMessage {
	var user strings.Builder
	fmt.Fprintf(&user, "Subject: %q\n", subject)
	if subjectContext != "" {
		fmt.Fprintf(&user, "Recent context about the subject:\n%s\n", subjectContext)
	}
	fmt.Fprintf(&user, "\nComment:\n\"\"\"%s\"\"\"\n\nReturn ONLY valid JSON.", ConvertMarkdownToText(comment.Text))

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: user.String()},
	}
}

// cleanOpenAIResponse strips markdown fences and any prose around the JSON
// object.
func cleanOpenAIResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}
	return cleaned
}
