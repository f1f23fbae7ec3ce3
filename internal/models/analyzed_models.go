package models

// CommentJudgment is the audit row persisted next to a ScoreRecord: the
// comment, what the classifier said about it and how it was weighted.
type CommentJudgment struct {
	Comment  Comment           `json:"comment"`
	Judgment SentimentJudgment `json:"judgment"`
	Weighted WeightedJudgment  `json:"weighted"`
	// Excluded is set when the weighting policy dropped the comment.
	Excluded bool `json:"excluded"`
}
