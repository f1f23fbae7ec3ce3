package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spacesedan/ariss/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpenAI struct {
	calls   atomic.Int32
	handler func(n int32, w http.ResponseWriter, req openai.ChatCompletionRequest)
}

func (f *fakeOpenAI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		f.handler(f.calls.Add(1), w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestLLM(t *testing.T, f *fakeOpenAI, retries int) *LLM {
	t.Helper()
	srv := f.server(t)
	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	return NewLLM(openai.NewClientWithConfig(cfg), LLMOptions{
		Model:          "gpt-4o-mini",
		Temperature:    0.1,
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
	})
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func writeAPIError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"message":"status %d","type":"server_error"}}`, status)
}

func TestLLMClassify(t *testing.T) {
	t.Parallel()

	f := &fakeOpenAI{handler: func(_ int32, w http.ResponseWriter, req openai.ChatCompletionRequest) {
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.InDelta(t, 0.1, req.Temperature, 1e-6)
		if assert.Len(t, req.Messages, 2) {
			assert.Contains(t, req.Messages[1].Content, `"Acme Phone"`)
			assert.Contains(t, req.Messages[1].Content, "recall announced")
		}
		writeCompletion(w, "```json\n{\"reasoning\":\"praise\",\"context\":\"battery life\",\"sentiment\":82,\"bias_score\":35,\"confidence\":0.9}\n```")
	}}
	llm := newTestLLM(t, f, 3)

	j, err := llm.Classify(context.Background(), comment("battery life is superb"), "Acme Phone", "recall announced")
	require.NoError(t, err)
	assert.Equal(t, 82.0, j.RawScore)
	assert.Equal(t, models.ScalePercent, j.Scale)
	assert.Equal(t, 35.0, j.BiasScore)
	require.NotNil(t, j.ConfidenceHint)
	assert.Equal(t, 0.9, *j.ConfidenceHint)
	assert.Equal(t, "battery life", j.DetectedContext)
	assert.Equal(t, LLMName, j.Classifier)
}

func TestLLMMalformedResponses(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":      "I think it's positive",
		"missing bias":  `{"sentiment": 60}`,
		"out of bounds": `{"sentiment": 140, "bias_score": 20}`,
		"negative bias": `{"sentiment": 40, "bias_score": -3}`,
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := &fakeOpenAI{handler: func(_ int32, w http.ResponseWriter, _ openai.ChatCompletionRequest) {
				writeCompletion(w, body)
			}}
			_, err := newTestLLM(t, f, 3).Classify(context.Background(), comment("meh"), "x", "")
			assert.ErrorIs(t, err, models.ErrMalformedResponse)
			assert.EqualValues(t, 1, f.calls.Load(), "malformed output is not retried")
		})
	}
}

func TestLLMRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	f := &fakeOpenAI{handler: func(n int32, w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		if n < 3 {
			writeAPIError(w, http.StatusServiceUnavailable)
			return
		}
		writeCompletion(w, `{"sentiment": 20, "bias_score": 70}`)
	}}
	j, err := newTestLLM(t, f, 5).Classify(context.Background(), comment("awful"), "x", "")
	require.NoError(t, err)
	assert.Equal(t, 20.0, j.RawScore)
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestLLMUnavailableAfterRetries(t *testing.T) {
	t.Parallel()

	f := &fakeOpenAI{handler: func(_ int32, w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		writeAPIError(w, http.StatusTooManyRequests)
	}}
	_, err := newTestLLM(t, f, 3).Classify(context.Background(), comment("x y z"), "x", "")
	assert.ErrorIs(t, err, models.ErrClassifierUnavailable)
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestLLMDoesNotRetryBadCredentials(t *testing.T) {
	t.Parallel()

	f := &fakeOpenAI{handler: func(_ int32, w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		writeAPIError(w, http.StatusUnauthorized)
	}}
	_, err := newTestLLM(t, f, 5).Classify(context.Background(), comment("x y z"), "x", "")
	assert.ErrorIs(t, err, models.ErrClassifierUnavailable)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestCleanOpenAIResponse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, cleanOpenAIResponse("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanOpenAIResponse("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, cleanOpenAIResponse("Sure! {\"a\":1} hope that helps"))
}
