package models

// OpenAISentimentResponse is the JSON object the LLM classifier asks for.
// Pointer fields distinguish a missing value from zero.
type OpenAISentimentResponse struct {
	WordSentimentCheck string   `json:"word_sentiment_check"`
	Reasoning          string   `json:"reasoning"`
	Sentiment          *float64 `json:"sentiment"`
	BiasScore          *float64 `json:"bias_score"`
	Confidence         *float64 `json:"confidence,omitempty"`
	Context            string   `json:"context,omitempty"`
}
