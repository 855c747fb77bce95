// Package config loads the sequencer's YAML configuration.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"sequencer/infra/logging"
)

// EnvPath names the variable that overrides the config file location.
const EnvPath = "SEQUENCER_CONFIG"

const (
	PublisherSarama  = "sarama"
	PublisherKafkaGo = "kafka-go"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         logging.Config    `yaml:"log"`
	WAL         WALConfig         `yaml:"wal"`
	Output      StoreConfig       `yaml:"output"`
	Checkpoint  StoreConfig       `yaml:"checkpoint"`
	Replay      ReplayConfig      `yaml:"replay"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Broadcaster BroadcasterConfig `yaml:"broadcaster"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type WALConfig struct {
	Dir             string        `yaml:"dir"`
	SegmentSize     int64         `yaml:"segment_size"`
	SegmentDuration time.Duration `yaml:"segment_duration"`
	Sync            bool          `yaml:"sync"`
}

type StoreConfig struct {
	Dir string `yaml:"dir"`
}

type ReplayConfig struct {
	// Strict stops recovery when a replayed response differs from the
	// output log.
	Strict bool `yaml:"strict"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	RequestTopic  string   `yaml:"request_topic"`
	ResponseTopic string   `yaml:"response_topic"`
	GroupID       string   `yaml:"group_id"`
	Publisher     string   `yaml:"publisher"`
}

type BroadcasterConfig struct {
	Interval time.Duration `yaml:"interval"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			GRPCAddr:    ":50051",
			MetricsAddr: ":9090",
		},
		Log: logging.Config{Level: "info", Format: "json"},
		WAL: WALConfig{
			Dir:             "./data/input",
			SegmentSize:     64 << 20,
			SegmentDuration: time.Minute,
		},
		Output:     StoreConfig{Dir: "./data/output"},
		Checkpoint: StoreConfig{Dir: "./data/checkpoints"},
		Kafka: KafkaConfig{
			RequestTopic:  "sequencer.requests",
			ResponseTopic: "sequencer.responses",
			GroupID:       "sequencer",
			Publisher:     PublisherSarama,
		},
		Broadcaster: BroadcasterConfig{Interval: 250 * time.Millisecond},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return errors.New("server.grpc_addr is required")
	}
	if c.WAL.Dir == "" || c.Output.Dir == "" || c.Checkpoint.Dir == "" {
		return errors.New("wal.dir, output.dir and checkpoint.dir are required")
	}
	if c.WAL.Dir == c.Output.Dir || c.WAL.Dir == c.Checkpoint.Dir || c.Output.Dir == c.Checkpoint.Dir {
		return errors.New("wal, output and checkpoint directories must differ")
	}
	if c.WAL.SegmentSize < 0 || c.WAL.SegmentDuration < 0 {
		return errors.New("wal segment limits must not be negative")
	}
	if c.Broadcaster.Interval <= 0 {
		return errors.Newf("broadcaster.interval must be positive, got %s", c.Broadcaster.Interval)
	}
	if !c.Kafka.Enabled {
		return nil
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Kafka.RequestTopic == "" || c.Kafka.ResponseTopic == "" {
		return errors.New("kafka topics are required when kafka is enabled")
	}
	switch c.Kafka.Publisher {
	case PublisherSarama, PublisherKafkaGo:
	default:
		return errors.Newf("kafka.publisher must be %q or %q, got %q", PublisherSarama, PublisherKafkaGo, c.Kafka.Publisher)
	}
	return nil
}
