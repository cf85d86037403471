// Command splitcsv splits a local tweets CSV file into fixed-size chunk
// objects in the input staging area, optionally publishing one storage-write
// notification per chunk so the analyzer worker picks them up.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tweetlens/src/analyzer"
	"tweetlens/src/config"
	"tweetlens/src/mq"
	"tweetlens/src/splitter"
	"tweetlens/src/storage"
)

func main() {
	input := flag.String("input", "", "Path to source tweets CSV file")
	configPath := flag.String("config", "config/config.yaml", "Path to YAML config file")
	area := flag.String("area", "", "Destination storage area (defaults to input_area from config)")
	prefix := flag.String("prefix", "tweets", "Chunk object name prefix")
	size := flag.Int("size", 0, "Data rows per chunk (defaults to chunk_size from config)")
	notify := flag.Bool("notify", false, "Publish a storage-write notification per chunk")
	flag.Parse()

	if *input == "" {
		log.Fatalf("Usage: splitcsv -input tweets.csv [-config path] [-area name] [-prefix name] [-size N] [-notify]")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *area == "" {
		*area = cfg.InputArea
	}
	if *size == 0 {
		*size = cfg.ChunkSize
	}

	ctx := context.Background()
	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build object store: %v", err)
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("Failed to open input: %v", err)
	}
	defer f.Close()

	keys, err := splitter.Split(ctx, f, store, *area, *prefix, *size)
	if err != nil {
		log.Fatalf("Split failed after %d chunks: %v", len(keys), err)
	}
	log.Printf("Wrote %d chunks to %s", len(keys), *area)

	if !*notify {
		return
	}

	queue, err := mq.Dial(mq.Config{
		Host:     cfg.MQHost,
		Port:     cfg.MQPort,
		Username: cfg.MQUser,
		Password: cfg.MQPassword,
		Queue:    cfg.MQQueue,
	})
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer queue.Close()

	for _, key := range keys {
		ev := analyzer.Event{Records: []analyzer.EventRecord{{Area: *area, Key: key}}}
		if err := queue.PublishEvent(ctx, ev); err != nil {
			log.Fatalf("Failed to publish notification for %s: %v", key, err)
		}
	}
	log.Printf("Published %d notifications to %s", len(keys), cfg.MQQueue)
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.Storage == "dir" {
		return storage.NewDirStore(cfg.DirRoot), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return storage.NewS3Store(s3.NewFromConfig(awsCfg)), nil
}
