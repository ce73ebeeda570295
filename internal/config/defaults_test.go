package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Backend)
	assert.Equal(t, "gpt-4", cfg.LLM.OpenAI.Model)
	assert.Equal(t, "claude-2.1", cfg.LLM.Anthropic.Model)
	assert.Equal(t, DefaultTerminologyServerURL, cfg.Terminology.ServerURL)
	assert.Equal(t, DefaultTerminologyValueSetURL, cfg.Terminology.ValueSetURL)
	assert.Equal(t, 1, cfg.Resolver.BatchConcurrency)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Zero(t, cfg.LLM.Temperature)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9000
	cfg.LLM.Backend = "anthropic"
	cfg.LLM.Timeout = 5 * time.Second
	cfg.Terminology.Count = 3
	cfg.Kafka.Brokers = []string{"k1:9092", "k2:9092"}

	ApplyDefaults(cfg)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Backend)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Terminology.Count)
	assert.Len(t, cfg.Kafka.Brokers, 2)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
