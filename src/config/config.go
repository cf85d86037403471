// Package config loads and validates the pipeline's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrBadStorageBackend = errors.New(`storage must be "s3" or "dir"`)
	ErrMissingDirRoot    = errors.New("dir_root is required for the dir backend")
	ErrMissingInputArea  = errors.New("input_area is required")
	ErrMissingResultArea = errors.New("result_area is required")
	ErrMissingLanguage   = errors.New("language is required")
	ErrBadChunkSize      = errors.New("chunk_size must be at least 1")
	ErrBadMaxAttempts    = errors.New("retry.max_attempts must be at least 1")
	ErrBadInitialDelay   = errors.New("retry.initial_delay_ms must be non-negative")
	ErrBadMultiplier     = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrBadLogLevel       = errors.New("log_level must be one of: debug, info, warn, error")
)

// Config is the full pipeline configuration.
type Config struct {
	Storage       string `yaml:"storage"`  // "s3" or "dir"
	DirRoot       string `yaml:"dir_root"` // root directory for the dir backend
	InputArea     string `yaml:"input_area"`
	ResultArea    string `yaml:"result_area"`
	Language      string `yaml:"language"`
	ChunkSize     int    `yaml:"chunk_size"`
	Deterministic bool   `yaml:"deterministic_names"`
	LogLevel      string `yaml:"log_level"`

	MQHost     string `yaml:"mq_host"`
	MQPort     int    `yaml:"mq_port"`
	MQUser     string `yaml:"mq_user"`
	MQPassword string `yaml:"mq_password"`
	MQQueue    string `yaml:"mq_queue"`

	Retry RetryPolicy `yaml:"retry"`

	DedupeExpected uint    `yaml:"dedupe_expected_chunks"`
	DedupeFPRate   float64 `yaml:"dedupe_false_positive_rate"`
}

// RetryPolicy defines bounded-attempt exponential backoff for external calls.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// Delay returns the backoff before the given attempt number. The first
// attempt has no delay.
func (rp RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delayMs := float64(rp.InitialDelayMs)
	for i := 2; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}
	if rp.MaxDelayMs > 0 && delayMs > float64(rp.MaxDelayMs) {
		delayMs = float64(rp.MaxDelayMs)
	}
	return time.Duration(delayMs) * time.Millisecond
}

// Load reads the YAML file at path, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage == "" {
		c.Storage = "s3"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MQHost == "" {
		c.MQHost = "localhost"
	}
	if c.MQPort == 0 {
		c.MQPort = 5672
	}
	if c.MQUser == "" {
		c.MQUser = "guest"
	}
	if c.MQPassword == "" {
		c.MQPassword = "guest"
	}
	if c.MQQueue == "" {
		c.MQQueue = "chunk_events"
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelayMs == 0 {
		c.Retry.InitialDelayMs = 200
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = 5000
	}
	if c.Retry.BackoffMultiplier == 0 {
		c.Retry.BackoffMultiplier = 2.0
	}
	if c.DedupeExpected == 0 {
		c.DedupeExpected = 100000
	}
	if c.DedupeFPRate == 0 {
		c.DedupeFPRate = 0.01
	}
}

// Validate checks the configuration before any component is built.
func (c *Config) Validate() error {
	if c.Storage != "s3" && c.Storage != "dir" {
		return ErrBadStorageBackend
	}
	if c.Storage == "dir" && c.DirRoot == "" {
		return ErrMissingDirRoot
	}
	if c.InputArea == "" {
		return ErrMissingInputArea
	}
	if c.ResultArea == "" {
		return ErrMissingResultArea
	}
	if c.Language == "" {
		return ErrMissingLanguage
	}
	if c.ChunkSize < 1 {
		return ErrBadChunkSize
	}
	if c.Retry.MaxAttempts < 1 {
		return ErrBadMaxAttempts
	}
	if c.Retry.InitialDelayMs < 0 {
		return ErrBadInitialDelay
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		return ErrBadMultiplier
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrBadLogLevel
	}
	return nil
}
