package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "chat-queue", cfg.Temporal.TaskQueue)
	assert.Equal(t, 5, cfg.Stream.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.PollInterval.Std())
	assert.Equal(t, 10*time.Minute, cfg.Stream.MaxStreamTime.Std())
	assert.Equal(t, "claude", cfg.LLM.Provider)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
temporal:
  host_port: temporal.internal:7233
  task_queue: docs
documents:
  root: /srv/docs
  max_files: 3
llm:
  provider: openai
  model: gpt-4o-mini
stream:
  batch_size: 8
  poll_interval: 100ms
  max_stream_time: 2m
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "temporal.internal:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "docs", cfg.Temporal.TaskQueue)
	assert.Equal(t, "/srv/docs", cfg.Documents.Root)
	assert.Equal(t, 3, cfg.Documents.MaxFiles)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 8, cfg.Stream.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Stream.PollInterval.Std())
	assert.Equal(t, 2*time.Minute, cfg.Stream.MaxStreamTime.Std())
	// Defaults survive for keys the file omits.
	assert.Equal(t, "default", cfg.Temporal.Namespace)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "env-host:7233")
	t.Setenv("DOCCHAT_TASK_QUEUE", "env-queue")
	t.Setenv("DOCCHAT_DOCS_ROOT", "/env/docs")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-host:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "env-queue", cfg.Temporal.TaskQueue)
	assert.Equal(t, "/env/docs", cfg.Documents.Root)
	assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
}

func TestLoadClaudeKeyFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_API_KEY", "sk-legacy")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-legacy", cfg.LLM.APIKey)
}

func TestLoadOpenAIKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-oa")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-oa", cfg.LLM.APIKey)
}

func TestLoadInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  poll_interval: soon\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zero.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  batch_size: 0\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size")
}

func TestLLMOptions(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "bedrock"
	cfg.LLM.Model = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	cfg.LLM.AWSRegion = "us-west-2"
	opts := cfg.LLMOptions()
	assert.Equal(t, "bedrock", opts.Provider)
	assert.Equal(t, "anthropic.claude-3-5-sonnet-20241022-v2:0", opts.Model)
	assert.Equal(t, "us-west-2", opts.AWSRegion)
}
