package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

// Default conversion settings: 2 m temperature, stored as column "t2m".
const (
	DefaultVariableSelector  = ":TMP:2 m above ground:"
	DefaultVariableName      = "t2m"
	DefaultSourceBucketQuery = "region=us-east-1&anonymous=true"
)

// Config holds all service settings, populated from environment variables
// with an optional YAML file underneath.
type Config struct {
	// Conversion settings.
	VariableSelector  string
	VariableName      string
	OutputCompression string
	WorkDir           string
	Wgrib2Path        string
	SourceBucketQuery string

	// TargetBucket is the destination store; empty disables upload.
	TargetBucket      string
	TargetBucketQuery string

	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string // empty disables completion events
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
}

// fileConfig mirrors the YAML file named by CONFIG_FILE.
type fileConfig struct {
	Variable struct {
		Selector string `yaml:"selector"`
		Name     string `yaml:"name"`
	} `yaml:"variable"`
	Output struct {
		Compression string `yaml:"compression"`
		Bucket      string `yaml:"bucket"`
		BucketQuery string `yaml:"bucket_query"`
	} `yaml:"output"`
	Source struct {
		BucketQuery string `yaml:"bucket_query"`
	} `yaml:"source"`
	WorkDir    string `yaml:"work_dir"`
	Wgrib2Path string `yaml:"wgrib2_path"`
	Kafka      struct {
		Brokers     string `yaml:"brokers"`
		SourceTopic string `yaml:"source_topic"`
		SinkTopic   string `yaml:"sink_topic"`
		GroupID     string `yaml:"group_id"`
	} `yaml:"kafka"`
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from environment variables, applying file values
// and then defaults where unset.
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse CONFIG_FILE: %w", err)
		}
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		VariableSelector:  sharedcfg.EnvOrDefault("VARIABLE_SELECTOR", or(fc.Variable.Selector, DefaultVariableSelector)),
		VariableName:      sharedcfg.EnvOrDefault("VARIABLE_NAME", or(fc.Variable.Name, DefaultVariableName)),
		OutputCompression: sharedcfg.EnvOrDefault("OUTPUT_COMPRESSION", or(fc.Output.Compression, "gzip")),
		WorkDir:           sharedcfg.EnvOrDefault("WORK_DIR", or(fc.WorkDir, os.TempDir())),
		Wgrib2Path:        sharedcfg.EnvOrDefault("WGRIB2_PATH", or(fc.Wgrib2Path, "wgrib2")),
		SourceBucketQuery: sharedcfg.EnvOrDefault("SOURCE_BUCKET_QUERY", or(fc.Source.BucketQuery, DefaultSourceBucketQuery)),
		TargetBucket:      sharedcfg.EnvOrDefault("TARGET_BUCKET", fc.Output.Bucket),
		TargetBucketQuery: sharedcfg.EnvOrDefault("TARGET_BUCKET_QUERY", fc.Output.BucketQuery),

		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", or(fc.Kafka.Brokers, "localhost:9092"))),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", or(fc.Kafka.SourceTopic, "gfs-object-created")),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", fc.Kafka.SinkTopic),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", or(fc.Kafka.GroupID, "gfs-grid-etl")),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", or(fc.HTTPAddr, ":8080")),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", or(fc.LogLevel, "info")),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", or(fc.LogFormat, "json")),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if strings.TrimSpace(cfg.VariableSelector) == "" {
		return nil, errors.New("VARIABLE_SELECTOR must not be blank")
	}
	if err := domain.ValidateValueName(cfg.VariableName); err != nil {
		return nil, fmt.Errorf("VARIABLE_NAME: %w", err)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}

	return cfg, nil
}

// UploadEnabled reports whether a destination store is configured.
func (c *Config) UploadEnabled() bool {
	return c.TargetBucket != ""
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
