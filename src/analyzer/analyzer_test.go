package analyzer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"tweetlens/src/config"
	"tweetlens/src/tweets"
)

// memStore is an in-memory ObjectStore; Put can be made to fail per key
// prefix to exercise per-variant commit.
type memStore struct {
	objects    map[string][]byte
	failPrefix string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(ctx context.Context, area, key string, body []byte) error {
	if m.failPrefix != "" && strings.HasPrefix(key, m.failPrefix) {
		return fmt.Errorf("induced put failure for %s", key)
	}
	m.objects[area+"/"+key] = append([]byte(nil), body...)
	return nil
}

func (m *memStore) Get(ctx context.Context, area, key string) ([]byte, error) {
	body, ok := m.objects[area+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such object %s/%s", area, key)
	}
	return body, nil
}

func (m *memStore) List(ctx context.Context, area, prefix string) ([]string, error) {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, area+"/"+prefix) {
			keys = append(keys, strings.TrimPrefix(k, area+"/"))
		}
	}
	return keys, nil
}

// fakeText returns canned findings keyed by text. failuresLeft induces
// transient errors; misorder reverses every result list to exercise the
// positional contract.
type fakeText struct {
	sentiments   map[string]Sentiment
	entities     map[string][]Entity
	phrases      map[string][]KeyPhrase
	failuresLeft int
	misorder     bool
	calls        int
}

func (f *fakeText) fail() error {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("transient analysis failure")
	}
	return nil
}

func (f *fakeText) DetectSentiment(ctx context.Context, texts []string) ([]Sentiment, error) {
	f.calls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	out := make([]Sentiment, len(texts))
	for i, txt := range texts {
		s, ok := f.sentiments[txt]
		if !ok {
			s = Sentiment{Label: "NEUTRAL", Score: SentimentScore{Neutral: 1}}
		}
		out[i] = s
	}
	if f.misorder {
		reverse(out)
	}
	return out, nil
}

func (f *fakeText) DetectEntities(ctx context.Context, texts []string) ([][]Entity, error) {
	f.calls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	out := make([][]Entity, len(texts))
	for i, txt := range texts {
		out[i] = f.entities[txt]
	}
	if f.misorder {
		reverse(out)
	}
	return out, nil
}

func (f *fakeText) DetectKeyPhrases(ctx context.Context, texts []string) ([][]KeyPhrase, error) {
	f.calls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	out := make([][]KeyPhrase, len(texts))
	for i, txt := range texts {
		out[i] = f.phrases[txt]
	}
	if f.misorder {
		reverse(out)
	}
	return out, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func chunkCSV(rows ...[]string) []byte {
	var b bytes.Buffer
	b.WriteString(strings.Join(tweets.Columns, ",") + "\n")
	for _, row := range rows {
		b.WriteString(strings.Join(row, ",") + "\n")
	}
	return b.Bytes()
}

func testAnalyzer(store *memStore, text TextAnalyzer) *Analyzer {
	a := New(store, text, Config{
		ResultArea: "results",
		Retry:      config.RetryPolicy{MaxAttempts: 1},
	}, nil)
	a.now = func() time.Time { return time.Date(2017, 6, 1, 12, 0, 0, 0, time.UTC) }
	a.randn = func(n int) int { return 42 }
	return a
}

func decodeLines[T any](t *testing.T, body []byte) []T {
	t.Helper()
	var out []T
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			t.Fatalf("Result line is not self-contained JSON: %v\nline: %s", err, line)
		}
		out = append(out, v)
	}
	return out
}

func variantObject(t *testing.T, store *memStore, variant string) []byte {
	t.Helper()
	keys, _ := store.List(context.Background(), "results", variant+"/")
	if len(keys) != 1 {
		t.Fatalf("Expected exactly one %s object, got %v", variant, keys)
	}
	body, err := store.Get(context.Background(), "results", keys[0])
	if err != nil {
		t.Fatalf("Get %s: %v", keys[0], err)
	}
	return body
}

func TestHandleEventFlattening(t *testing.T) {
	store := newMemStore()
	store.objects["staging/tweets_0.csv"] = chunkCSV(
		[]string{"1", "0", "0", "2017-06-01", "seattle loves golang"},
		[]string{"2", "3", "1", "2017-06-02", "just noise"},
	)

	text := &fakeText{
		sentiments: map[string]Sentiment{
			"seattle loves golang": {Label: "POSITIVE", Score: SentimentScore{Positive: 0.91, Neutral: 0.05, Negative: 0.02, Mixed: 0.02}},
			"just noise":           {Label: "NEUTRAL", Score: SentimentScore{Neutral: 0.97}},
		},
		entities: map[string][]Entity{
			// One text yielding 2 entities and 0 key phrases.
			"seattle loves golang": {
				{Text: "seattle", Score: 0.99, Type: "LOCATION"},
				{Text: "golang", Score: 0.87, Type: "TITLE"},
			},
		},
		phrases: map[string][]KeyPhrase{
			"just noise": {{Text: "noise", Score: 0.66}},
		},
	}

	a := testAnalyzer(store, text)
	ev := Event{Records: []EventRecord{{Area: "staging", Key: "tweets_0.csv"}}}
	if err := a.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	// Sentiment is strictly 1:1 with input records.
	sents := decodeLines[tweets.SentimentResult](t, variantObject(t, store, VariantSentiment))
	if len(sents) != 2 {
		t.Fatalf("Expected 2 sentiment lines, got %d", len(sents))
	}
	if sents[0].TweetID != "1" || sents[0].Sentiment != "POSITIVE" || sents[0].PositiveScore != 0.91 {
		t.Errorf("Unexpected first sentiment line: %+v", sents[0])
	}
	if sents[1].TweetID != "2" || sents[1].Sentiment != "NEUTRAL" {
		t.Errorf("Unexpected second sentiment line: %+v", sents[1])
	}
	if sents[0].TweetDate != "2017-06-01" || sents[0].TweetText != "seattle loves golang" {
		t.Errorf("Sentiment line lost originating tweet fields: %+v", sents[0])
	}

	// Entities are 0:many: tweet 1 contributed 2 lines, tweet 2 none.
	ents := decodeLines[tweets.EntityResult](t, variantObject(t, store, VariantEntities))
	if len(ents) != 2 {
		t.Fatalf("Expected 2 entity lines, got %d", len(ents))
	}
	for _, e := range ents {
		if e.TweetID != "1" {
			t.Errorf("Entity line attributed to wrong tweet: %+v", e)
		}
	}
	if ents[0].Entity != "seattle" || ents[0].Type != "LOCATION" {
		t.Errorf("Unexpected first entity line: %+v", ents[0])
	}

	// Key phrases: only tweet 2 contributed.
	phr := decodeLines[tweets.KeyPhraseResult](t, variantObject(t, store, VariantPhrases))
	if len(phr) != 1 {
		t.Fatalf("Expected 1 keyphrase line, got %d", len(phr))
	}
	if phr[0].TweetID != "2" || phr[0].Entity != "noise" {
		t.Errorf("Unexpected keyphrase line: %+v", phr[0])
	}
}

func TestResultObjectNaming(t *testing.T) {
	store := newMemStore()
	store.objects["staging/tweets_0.csv"] = chunkCSV([]string{"1", "0", "0", "d", "text"})

	a := testAnalyzer(store, &fakeText{})
	ev := Event{Records: []EventRecord{{Area: "staging", Key: "tweets_0.csv"}}}
	if err := a.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	// {variant}/{randint:03d}-{isoTimestamp}.json
	pattern := regexp.MustCompile(`^(sentiment|entities|keyphrases)/\d{3}-2017-06-01T12:00:00Z\.json$`)
	keys, _ := store.List(context.Background(), "results", "")
	if len(keys) != 3 {
		t.Fatalf("Expected 3 result objects, got %v", keys)
	}
	for _, key := range keys {
		if !pattern.MatchString(key) {
			t.Errorf("Result key %q does not match naming scheme", key)
		}
	}
}

func TestDeterministicNaming(t *testing.T) {
	store := newMemStore()
	store.objects["staging/tweets_7.csv"] = chunkCSV([]string{"1", "0", "0", "d", "text"})

	a := testAnalyzer(store, &fakeText{})
	a.cfg.DeterministicNames = true

	ev := Event{Records: []EventRecord{{Area: "staging", Key: "tweets_7.csv"}}}

	// Run twice: a redelivered event must overwrite, not duplicate.
	for i := 0; i < 2; i++ {
		if err := a.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("HandleEvent run %d failed: %v", i, err)
		}
	}

	keys, _ := store.List(context.Background(), "results", "")
	if len(keys) != 3 {
		t.Fatalf("Expected 3 result objects after redelivery, got %v", keys)
	}
	if _, err := store.Get(context.Background(), "results", "sentiment/tweets_7.json"); err != nil {
		t.Errorf("Expected deterministic key sentiment/tweets_7.json: %v", err)
	}
}

func TestOrderingContractRegression(t *testing.T) {
	// The analyzer attributes findings positionally. A TextAnalyzer that
	// violates input order mis-attributes results silently; this pins down
	// that assumption so the contract is never weakened by accident.
	store := newMemStore()
	store.objects["staging/tweets_0.csv"] = chunkCSV(
		[]string{"1", "0", "0", "d", "first text"},
		[]string{"2", "0", "0", "d", "second text"},
	)

	text := &fakeText{
		sentiments: map[string]Sentiment{
			"first text":  {Label: "POSITIVE"},
			"second text": {Label: "NEGATIVE"},
		},
		misorder: true,
	}

	a := testAnalyzer(store, text)
	ev := Event{Records: []EventRecord{{Area: "staging", Key: "tweets_0.csv"}}}
	if err := a.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	sents := decodeLines[tweets.SentimentResult](t, variantObject(t, store, VariantSentiment))
	if sents[0].TweetID != "1" {
		t.Fatalf("Expected first line for tweet 1, got %+v", sents[0])
	}
	// Tweet 1 was POSITIVE, but the misordered response attributes NEGATIVE.
	if sents[0].Sentiment != "NEGATIVE" {
		t.Errorf("Expected misordered responses to be silently mis-attributed, got %q for tweet 1", sents[0].Sentiment)
	}
}

func TestPerVariantCommit(t *testing.T) {
	store := newMemStore()
	store.objects["staging/tweets_0.csv"] = chunkCSV([]string{"1", "0", "0", "d", "some text"})
	store.failPrefix = VariantEntities + "/"

	a := testAnalyzer(store, &fakeText{})
	ev := Event{Records: []EventRecord{{Area: "staging", Key: "tweets_0.csv"}}}
	err := a.HandleEvent(context.Background(), ev)
	if err == nil {
		t.Fatal("Expected an error when the entities variant fails to publish")
	}
	if !strings.Contains(err.Error(), "entities") {
		t.Errorf("Error should name the failed variant: %v", err)
	}

	// The other two variants must still have committed.
	for _, variant := range []string{VariantSentiment, VariantPhrases} {
		keys, _ := store.List(context.Background(), "results", variant+"/")
		if len(keys) != 1 {
			t.Errorf("Variant %s should have committed despite entities failure, got %v", variant, keys)
		}
	}
	if keys, _ := store.List(context.Background(), "results", VariantEntities+"/"); len(keys) != 0 {
		t.Errorf("Entities variant should not have committed, got %v", keys)
	}
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	store := newMemStore()
	store.objects["staging/tweets_0.csv"] = chunkCSV([]string{"1", "0", "0", "d", "text"})

	text := &fakeText{failuresLeft: 2}
	a := New(store, text, Config{
		ResultArea: "results",
		Retry:      config.RetryPolicy{MaxAttempts: 3, InitialDelayMs: 0, BackoffMultiplier: 1},
	}, nil)

	ev := Event{Records: []EventRecord{{Area: "staging", Key: "tweets_0.csv"}}}
	if err := a.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("Expected retries to absorb 2 transient failures: %v", err)
	}
}

func TestRetryExhaustionSurfacesError(t *testing.T) {
	store := newMemStore()
	store.objects["staging/tweets_0.csv"] = chunkCSV([]string{"1", "0", "0", "d", "text"})

	text := &fakeText{failuresLeft: 10}
	a := New(store, text, Config{
		ResultArea: "results",
		Retry:      config.RetryPolicy{MaxAttempts: 2, InitialDelayMs: 0, BackoffMultiplier: 1},
	}, nil)

	ev := Event{Records: []EventRecord{{Area: "staging", Key: "tweets_0.csv"}}}
	err := a.HandleEvent(context.Background(), ev)
	if err == nil {
		t.Fatal("Expected error after retry exhaustion")
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("Error should report the attempt count: %v", err)
	}
}

func TestHandleEventSchemaMismatch(t *testing.T) {
	store := newMemStore()
	store.objects["staging/bad.csv"] = []byte("a,b,c\n1,2,3\n")

	a := testAnalyzer(store, &fakeText{})
	ev := Event{Records: []EventRecord{{Area: "staging", Key: "bad.csv"}}}
	err := a.HandleEvent(context.Background(), ev)
	if !errors.Is(err, tweets.ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch, got %v", err)
	}
}

func TestHandleEventMissingObject(t *testing.T) {
	a := testAnalyzer(newMemStore(), &fakeText{})
	ev := Event{Records: []EventRecord{{Area: "staging", Key: "gone.csv"}}}
	if err := a.HandleEvent(context.Background(), ev); err == nil {
		t.Error("Expected error for a missing chunk object")
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	// The worker and splitcsv exchange this payload over the queue.
	ev := Event{Records: []EventRecord{{Area: "staging", Key: "tweets_0.csv"}}}
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var got Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(got.Records) != 1 || got.Records[0] != ev.Records[0] {
		t.Errorf("Round trip mismatch: %+v", got)
	}
}
