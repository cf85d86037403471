// Package tweets holds the shared record types that flow through the
// pipeline: the input tweet schema and the flattened analysis result rows.
package tweets

import (
	"errors"
	"fmt"
)

// Columns is the canonical column order for chunk files. The analyzer
// resolves columns by name from the header row, but the splitter preserves
// this order so chunk files stay positionally stable for downstream scans.
var Columns = []string{"tweet_id", "retweet_count", "favorite_count", "created_at", "text"}

var (
	// ErrSchemaMismatch means a chunk header is missing a required column.
	ErrSchemaMismatch = errors.New("header does not match tweet schema")
	// ErrShortRow means a data row has fewer fields than the resolved schema.
	ErrShortRow = errors.New("row has fewer fields than schema")
)

// Schema maps the named tweet columns to their positions in one chunk file.
// Resolving by name instead of hard-coded offsets means a column shuffle
// upstream fails loudly at parse time rather than silently misreading text.
type Schema struct {
	id        int
	createdAt int
	text      int
	width     int
}

// ResolveSchema builds a Schema from a chunk's header row.
func ResolveSchema(header []string) (Schema, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}
	for _, required := range Columns {
		if _, ok := pos[required]; !ok {
			return Schema{}, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, required)
		}
	}
	s := Schema{
		id:        pos["tweet_id"],
		createdAt: pos["created_at"],
		text:      pos["text"],
	}
	s.width = s.id
	for _, i := range []int{s.createdAt, s.text} {
		if i > s.width {
			s.width = i
		}
	}
	s.width++
	return s, nil
}

// Parse converts one data row into a Tweet. The retweet/favorite counts ride
// along in chunk files untouched; the analyzer never reads them.
func (s Schema) Parse(row []string) (Tweet, error) {
	if len(row) < s.width {
		return Tweet{}, fmt.Errorf("%w: got %d fields, need %d", ErrShortRow, len(row), s.width)
	}
	return Tweet{
		ID:        row[s.id],
		CreatedAt: row[s.createdAt],
		Text:      row[s.text],
	}, nil
}

// Tweet is one input record. Records are immutable once parsed.
type Tweet struct {
	ID        string
	CreatedAt string
	Text      string
}

// SentimentResult is one flattened sentiment finding; exactly one is emitted
// per input tweet.
type SentimentResult struct {
	TweetID       string  `json:"tweet_id"`
	TweetText     string  `json:"tweet_text"`
	TweetDate     string  `json:"tweet_date"`
	Sentiment     string  `json:"sentiment"`
	PositiveScore float64 `json:"positive_score"`
	NegativeScore float64 `json:"negative_score"`
	MixedScore    float64 `json:"mixed_score"`
	NeutralScore  float64 `json:"neutral_score"`
}

// EntityResult is one detected entity; zero or more are emitted per tweet.
type EntityResult struct {
	TweetID   string  `json:"tweet_id"`
	TweetText string  `json:"tweet_text"`
	TweetDate string  `json:"tweet_date"`
	Entity    string  `json:"entity"`
	Score     float64 `json:"score"`
	Type      string  `json:"type"`
}

// KeyPhraseResult is one detected key phrase; zero or more are emitted per
// tweet. The phrase text is published under the "entity" field name so both
// 0:many variants share a column name downstream.
type KeyPhraseResult struct {
	TweetID   string  `json:"tweet_id"`
	TweetText string  `json:"tweet_text"`
	TweetDate string  `json:"tweet_date"`
	Entity    string  `json:"entity"`
	Score     float64 `json:"score"`
}
