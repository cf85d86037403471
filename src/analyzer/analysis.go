package analyzer

import "context"

// SentimentScore carries the four class probabilities reported by the
// analysis service. They sum to roughly 1.0.
type SentimentScore struct {
	Positive float64
	Negative float64
	Neutral  float64
	Mixed    float64
}

// Sentiment is the per-tweet sentiment finding.
type Sentiment struct {
	Label string
	Score SentimentScore
}

// Entity is one named entity detected in a tweet.
type Entity struct {
	Text  string
	Score float64
	Type  string
}

// KeyPhrase is one key phrase detected in a tweet.
type KeyPhrase struct {
	Text  string
	Score float64
}

// TextAnalyzer is the batch text-analysis service. Each operation takes an
// ordered list of texts and must return one result per input, in input
// order: the analyzer attributes findings to tweets positionally and never
// re-matches by content.
type TextAnalyzer interface {
	DetectSentiment(ctx context.Context, texts []string) ([]Sentiment, error)
	DetectEntities(ctx context.Context, texts []string) ([][]Entity, error)
	DetectKeyPhrases(ctx context.Context, texts []string) ([][]KeyPhrase, error)
}
