// Package config loads service configuration for the worker and API
// processes. Values resolve in three layers: compiled defaults, an optional
// YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"goa.design/docchat/llm"
)

// Duration wraps time.Duration so YAML files can use "250ms" / "10m" forms.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Temporal holds connection settings for the workflow engine.
type Temporal struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

// HTTP holds API server settings.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Documents bounds filesystem access for one request.
type Documents struct {
	Root            string `yaml:"root"`
	MaxFiles        int    `yaml:"max_files"`
	MaxFileSizeMB   int    `yaml:"max_file_size_mb"`
	MaxTotalScanMB  int    `yaml:"max_total_scan_mb"`
	MaxCharsPerFile int    `yaml:"max_chars_per_file"`
}

// LLM selects and bounds the completion provider.
type LLM struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	AWSRegion   string  `yaml:"aws_region"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Stream tunes the token relay.
type Stream struct {
	// BatchSize is the maximum fragments per append signal.
	BatchSize int `yaml:"batch_size"`
	// PollInterval is the relay's snapshot query cadence.
	PollInterval Duration `yaml:"poll_interval"`
	// MaxStreamTime caps a relay session's wall-clock lifetime.
	MaxStreamTime Duration `yaml:"max_stream_time"`
}

// Config is the full service configuration.
type Config struct {
	Temporal  Temporal  `yaml:"temporal"`
	HTTP      HTTP      `yaml:"http"`
	Documents Documents `yaml:"documents"`
	LLM       LLM       `yaml:"llm"`
	Stream    Stream    `yaml:"stream"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Temporal: Temporal{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "chat-queue",
		},
		HTTP: HTTP{Addr: ":8000"},
		Documents: Documents{
			Root:            "/documents",
			MaxFiles:        10,
			MaxFileSizeMB:   10,
			MaxTotalScanMB:  100,
			MaxCharsPerFile: 2000,
		},
		LLM: LLM{
			Provider:    llm.ProviderClaude,
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Stream: Stream{
			BatchSize:     5,
			PollInterval:  Duration(250 * time.Millisecond),
			MaxStreamTime: Duration(10 * time.Minute),
		},
	}
}

// Load resolves the configuration: defaults, then the YAML file at path when
// non-empty, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Temporal.HostPort, "TEMPORAL_ADDRESS")
	setString(&c.Temporal.Namespace, "TEMPORAL_NAMESPACE")
	setString(&c.Temporal.TaskQueue, "DOCCHAT_TASK_QUEUE")
	setString(&c.HTTP.Addr, "DOCCHAT_HTTP_ADDR")
	setString(&c.Documents.Root, "DOCCHAT_DOCS_ROOT")
	setInt(&c.Documents.MaxFiles, "DOCCHAT_MAX_FILES")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.AWSRegion, "AWS_REGION")
	setInt(&c.Stream.BatchSize, "DOCCHAT_BATCH_SIZE")

	// Provider-specific key environment variables; an explicit api_key from
	// the file is kept when none is set.
	switch c.LLM.Provider {
	case llm.ProviderOpenAI:
		setString(&c.LLM.APIKey, "OPENAI_API_KEY")
	default:
		setString(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			setString(&c.LLM.APIKey, "CLAUDE_API_KEY")
		}
	}
}

func (c *Config) validate() error {
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("config: temporal task queue must not be empty")
	}
	if c.Stream.BatchSize < 1 {
		return fmt.Errorf("config: stream batch size must be at least 1, got %d", c.Stream.BatchSize)
	}
	if c.Stream.PollInterval.Std() <= 0 {
		return fmt.Errorf("config: stream poll interval must be positive")
	}
	if c.Stream.MaxStreamTime.Std() <= 0 {
		return fmt.Errorf("config: stream max stream time must be positive")
	}
	return nil
}

// LLMOptions maps the configuration onto the provider factory options.
func (c Config) LLMOptions() llm.Options {
	return llm.Options{
		Provider:  c.LLM.Provider,
		Model:     c.LLM.Model,
		APIKey:    c.LLM.APIKey,
		AWSRegion: c.LLM.AWSRegion,
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
