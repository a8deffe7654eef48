package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, int64(16*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, cfg.OCRTimeout)
	assert.Equal(t, 2, cfg.OCREngine)
	assert.Equal(t, "eng", cfg.OCRLanguage)
	assert.InDelta(t, 0.1, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 10, cfg.StatsTopN)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("OCR_TIMEOUT", "5s")
	t.Setenv("LLM_TEMPERATURE", "0.3")
	t.Setenv("OCR_MAX_ATTEMPTS", "not-a-number")

	cfg := Load()

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.OCRTimeout)
	assert.InDelta(t, 0.3, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 2, cfg.OCRMaxAttempts)
}

func TestKafkaDisabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	assert.Empty(t, Load().KafkaBrokers)

	t.Setenv("KAFKA_BROKERS", " , ")
	assert.Empty(t, Load().KafkaBrokers)
}
