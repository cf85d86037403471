package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tweetlens/src/analyzer"
	"tweetlens/src/config"
	"tweetlens/src/dedupe"
	"tweetlens/src/mq"
	"tweetlens/src/storage"
)

// Global stats counters, reported by the periodic stats printer.
var (
	chunksHandled atomic.Int64
	chunksSkipped atomic.Int64
	chunksFailed  atomic.Int64
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, text, err := buildBackends(ctx, cfg)
	if err != nil {
		slog.Error("Failed to build backends", "error", err)
		os.Exit(1)
	}

	an := analyzer.New(store, text, analyzer.Config{
		ResultArea:         cfg.ResultArea,
		DeterministicNames: cfg.Deterministic,
		Retry:              cfg.Retry,
	}, logger)

	seen := dedupe.New(cfg.DedupeExpected, cfg.DedupeFPRate)

	queue, err := mq.Dial(mq.Config{
		Host:     cfg.MQHost,
		Port:     cfg.MQPort,
		Username: cfg.MQUser,
		Password: cfg.MQPassword,
		Queue:    cfg.MQQueue,
	})
	if err != nil {
		slog.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	msgs, err := queue.Consume()
	if err != nil {
		slog.Error("Failed to register a consumer", "error", err)
		os.Exit(1)
	}

	startStatsPrinter(ctx)

	slog.Info("Waiting for chunk notifications", "queue", cfg.MQQueue, "storage", cfg.Storage, "result_area", cfg.ResultArea)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Error("Delivery channel closed")
				return
			}

			var ev analyzer.Event
			if err := json.Unmarshal(msg.Body, &ev); err != nil {
				slog.Error("Dropping malformed notification", "error", err)
				msg.Nack(false, false)
				continue
			}

			// Skip chunks this process already finished; a redelivered event
			// for an unfinished chunk stays eligible.
			kept := ev.Records[:0]
			for _, rec := range ev.Records {
				if seen.Seen(rec.Area + "/" + rec.Key) {
					slog.Info("Skipping already handled chunk", "key", rec.Key)
					chunksSkipped.Add(1)
					continue
				}
				kept = append(kept, rec)
			}
			ev.Records = kept
			if len(ev.Records) == 0 {
				msg.Ack(false)
				continue
			}

			if err := an.HandleEvent(ctx, ev); err != nil {
				slog.Error("Chunk analysis failed, requeueing", "error", err)
				chunksFailed.Add(1)
				msg.Nack(false, true)
				continue
			}
			for _, rec := range ev.Records {
				seen.Mark(rec.Area + "/" + rec.Key)
			}
			chunksHandled.Add(int64(len(ev.Records)))
			msg.Ack(false)
		}
	}
}

// buildBackends wires the object store and text-analysis client from config.
// Comprehend is always AWS-backed; the store can be S3 or a local directory.
func buildBackends(ctx context.Context, cfg *config.Config) (storage.ObjectStore, analyzer.TextAnalyzer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load AWS config: %w", err)
	}
	text := analyzer.NewComprehend(comprehend.NewFromConfig(awsCfg), cfg.Language)

	var store storage.ObjectStore
	if cfg.Storage == "dir" {
		store = storage.NewDirStore(cfg.DirRoot)
	} else {
		store = storage.NewS3Store(s3.NewFromConfig(awsCfg))
	}
	return store, text, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startStatsPrinter logs a stats line every 30 seconds.
func startStatsPrinter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				slog.Info("Pipeline stats",
					"chunks_handled", chunksHandled.Load(),
					"chunks_skipped", chunksSkipped.Load(),
					"chunks_failed", chunksFailed.Load())
			}
		}
	}()
}
