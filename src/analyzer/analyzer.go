// Package analyzer turns one newly stored chunk object into three
// newline-delimited JSON result objects, one per analysis variant.
package analyzer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path"
	"strings"
	"time"

	"tweetlens/src/config"
	"tweetlens/src/storage"
	"tweetlens/src/tweets"
)

// Result object variants. Each becomes a logical subfolder in the result
// area so downstream scans can treat a variant as one table.
const (
	VariantSentiment = "sentiment"
	VariantEntities  = "entities"
	VariantPhrases   = "keyphrases"
)

// EventRecord identifies one stored chunk object.
type EventRecord struct {
	Area string `json:"area"`
	Key  string `json:"key"`
}

// Event is a storage-write notification enumerating one or more chunk
// objects. It is the JSON payload on the notification queue and the
// converted form of a native S3 event. Consumed read-only.
type Event struct {
	Records []EventRecord `json:"records"`
}

// Config is the explicit per-analyzer configuration.
type Config struct {
	// ResultArea is the storage area result objects are written to.
	ResultArea string
	// DeterministicNames derives result object names from the chunk key so a
	// redelivered event overwrites its own output instead of duplicating it.
	// When false, names get a randomized three-digit prefix plus a timestamp,
	// which spreads storage partitioning but accepts duplicates on redelivery.
	DeterministicNames bool
	// Retry bounds attempts around each analysis call and each result write.
	Retry config.RetryPolicy
}

// Analyzer is stateless across invocations; concurrent invocations never
// contend because every output object gets a fresh name.
type Analyzer struct {
	store storage.ObjectStore
	text  TextAnalyzer
	cfg   Config
	log   *slog.Logger

	// Overridable for tests.
	now   func() time.Time
	randn func(n int) int
}

// New builds an Analyzer. A nil logger falls back to slog.Default.
func New(store storage.ObjectStore, text TextAnalyzer, cfg Config, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	return &Analyzer{
		store: store,
		text:  text,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		randn: rand.Intn,
	}
}

// HandleEvent analyzes every chunk the event names, in order. The first
// failing chunk aborts the event so the trigger platform can redeliver it.
func (a *Analyzer) HandleEvent(ctx context.Context, ev Event) error {
	for _, rec := range ev.Records {
		if err := a.handleChunk(ctx, rec); err != nil {
			return fmt.Errorf("chunk %s/%s: %w", rec.Area, rec.Key, err)
		}
	}
	return nil
}

func (a *Analyzer) handleChunk(ctx context.Context, rec EventRecord) error {
	body, err := a.store.Get(ctx, rec.Area, rec.Key)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	tws, err := parseChunk(body)
	if err != nil {
		return err
	}
	if len(tws) == 0 {
		a.log.Warn("Chunk has no data rows", "key", rec.Key)
		return nil
	}

	texts := make([]string, len(tws))
	for i, tw := range tws {
		texts[i] = tw.Text
	}

	var (
		sentiments []Sentiment
		entities   [][]Entity
		phrases    [][]KeyPhrase
	)
	if err := a.withRetry(ctx, "detect sentiment", func(ctx context.Context) error {
		var err error
		sentiments, err = a.text.DetectSentiment(ctx, texts)
		return err
	}); err != nil {
		return err
	}
	if err := a.withRetry(ctx, "detect entities", func(ctx context.Context) error {
		var err error
		entities, err = a.text.DetectEntities(ctx, texts)
		return err
	}); err != nil {
		return err
	}
	if err := a.withRetry(ctx, "detect key phrases", func(ctx context.Context) error {
		var err error
		phrases, err = a.text.DetectKeyPhrases(ctx, texts)
		return err
	}); err != nil {
		return err
	}

	if len(sentiments) != len(tws) || len(entities) != len(tws) || len(phrases) != len(tws) {
		return fmt.Errorf("analysis result count mismatch: %d tweets, %d sentiments, %d entity lists, %d phrase lists",
			len(tws), len(sentiments), len(entities), len(phrases))
	}

	sentOut := make([]tweets.SentimentResult, len(tws))
	for i, tw := range tws {
		s := sentiments[i]
		sentOut[i] = tweets.SentimentResult{
			TweetID:       tw.ID,
			TweetText:     tw.Text,
			TweetDate:     tw.CreatedAt,
			Sentiment:     s.Label,
			PositiveScore: s.Score.Positive,
			NegativeScore: s.Score.Negative,
			MixedScore:    s.Score.Mixed,
			NeutralScore:  s.Score.Neutral,
		}
	}
	var entOut []tweets.EntityResult
	for i, tw := range tws {
		for _, e := range entities[i] {
			entOut = append(entOut, tweets.EntityResult{
				TweetID:   tw.ID,
				TweetText: tw.Text,
				TweetDate: tw.CreatedAt,
				Entity:    e.Text,
				Score:     e.Score,
				Type:      e.Type,
			})
		}
	}
	var phraseOut []tweets.KeyPhraseResult
	for i, tw := range tws {
		for _, p := range phrases[i] {
			phraseOut = append(phraseOut, tweets.KeyPhraseResult{
				TweetID:   tw.ID,
				TweetText: tw.Text,
				TweetDate: tw.CreatedAt,
				Entity:    p.Text,
				Score:     p.Score,
			})
		}
	}

	// Each variant commits independently: a failed write of one variant must
	// not discard the other two. Failures are joined and reported together.
	var errs []error
	if err := publish(ctx, a, rec.Key, VariantSentiment, sentOut); err != nil {
		errs = append(errs, err)
	}
	if err := publish(ctx, a, rec.Key, VariantEntities, entOut); err != nil {
		errs = append(errs, err)
	}
	if err := publish(ctx, a, rec.Key, VariantPhrases, phraseOut); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	a.log.Info("Chunk analyzed",
		"key", rec.Key,
		"tweets", len(tws),
		"sentiment_lines", len(sentOut),
		"entity_lines", len(entOut),
		"keyphrase_lines", len(phraseOut))
	return nil
}

// parseChunk decodes a chunk object into tweets, validating the header
// against the named-field schema and dropping it.
func parseChunk(body []byte) ([]tweets.Tweet, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse chunk: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse chunk: empty object: %w", tweets.ErrSchemaMismatch)
	}
	schema, err := tweets.ResolveSchema(rows[0])
	if err != nil {
		return nil, err
	}
	out := make([]tweets.Tweet, 0, len(rows)-1)
	for i, row := range rows[1:] {
		tw, err := schema.Parse(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, tw)
	}
	return out, nil
}

// publish serializes the results one JSON object per line and writes them as
// a single object under the variant's subfolder.
func publish[T any](ctx context.Context, a *Analyzer, chunkKey, variant string, results []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode %s result: %w", variant, err)
		}
	}
	key := a.resultKey(variant, chunkKey)
	err := a.withRetry(ctx, "publish "+variant, func(ctx context.Context) error {
		return a.store.Put(ctx, a.cfg.ResultArea, key, buf.Bytes())
	})
	if err != nil {
		return err
	}
	a.log.Debug("Result object written", "variant", variant, "key", key, "lines", len(results))
	return nil
}

// resultKey names one result object. The default randomized form is
// {variant}/{randint:03d}-{isoTimestamp}.json.
func (a *Analyzer) resultKey(variant, chunkKey string) string {
	if a.cfg.DeterministicNames {
		base := path.Base(chunkKey)
		base = strings.TrimSuffix(base, path.Ext(base))
		return fmt.Sprintf("%s/%s.json", variant, base)
	}
	ts := a.now().UTC().Format(time.RFC3339)
	return fmt.Sprintf("%s/%03d-%s.json", variant, a.randn(1000), ts)
}

// withRetry runs fn under the bounded-attempt backoff policy.
func (a *Analyzer) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= a.cfg.Retry.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == a.cfg.Retry.MaxAttempts {
			break
		}
		delay := a.cfg.Retry.Delay(attempt + 1)
		a.log.Warn("Attempt failed, backing off", "op", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, a.cfg.Retry.MaxAttempts, err)
}
