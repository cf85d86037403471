// Command lambda is the AWS entry point: the analyzer invoked directly from
// S3 ObjectCreated events, configured through environment variables.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tweetlens/src/analyzer"
	"tweetlens/src/config"
	"tweetlens/src/storage"
)

var an *analyzer.Analyzer

func handle(ctx context.Context, ev events.S3Event) error {
	return an.HandleEvent(ctx, fromS3Event(ev))
}

// fromS3Event converts the native trigger payload. S3 event keys arrive
// URL-encoded.
func fromS3Event(ev events.S3Event) analyzer.Event {
	out := analyzer.Event{Records: make([]analyzer.EventRecord, 0, len(ev.Records))}
	for _, rec := range ev.Records {
		key := rec.S3.Object.Key
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		out.Records = append(out.Records, analyzer.EventRecord{
			Area: rec.S3.Bucket.Name,
			Key:  key,
		})
	}
	return out
}

func main() {
	ctx := context.Background()

	resultArea := os.Getenv("RESULT_BUCKET")
	if resultArea == "" {
		slog.Error("RESULT_BUCKET must be set")
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}

	an = analyzer.New(
		storage.NewS3Store(s3.NewFromConfig(awsCfg)),
		analyzer.NewComprehend(comprehend.NewFromConfig(awsCfg), envStr("LANGUAGE_CODE", "en")),
		analyzer.Config{
			ResultArea:         resultArea,
			DeterministicNames: os.Getenv("DETERMINISTIC_NAMES") == "true",
			Retry: config.RetryPolicy{
				MaxAttempts:       envInt("RETRY_MAX_ATTEMPTS", 3),
				InitialDelayMs:    envInt("RETRY_INITIAL_DELAY_MS", 200),
				MaxDelayMs:        envInt("RETRY_MAX_DELAY_MS", 5000),
				BackoffMultiplier: 2.0,
			},
		},
		slog.Default(),
	)

	lambda.Start(handle)
}

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
