package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	UploadDir      string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka. No brokers disables event publishing.
	KafkaBrokers            []string
	KafkaGroupID            string
	PrescriptionEventsTopic string

	// OCR
	OCRAPIKey      string
	OCRBaseURL     string
	OCRLanguage    string
	OCREngine      int
	OCRTimeout     time.Duration
	OCRMaxAttempts int

	// LLM
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModelName   string
	LLMTemperature float64
	LLMTimeout     time.Duration

	// Identity
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTTL      time.Duration

	// Privacy
	DLPRulesPath string

	// Aggregate statistics
	StatsCacheTTL time.Duration
	StatsTopN     int

	// Gateway specific
	GatewayRateLimitRPS   int
	GatewayRateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 2*time.Minute),
		MaxUploadBytes: int64(getIntEnv("MAX_UPLOAD_BYTES", 16*1024*1024)),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "rxdigitizer"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "rxdigitizer"),
		PostgresDB:       getEnv("POSTGRES_DB", "prescriptions"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:            getStringSliceEnv("KAFKA_BROKERS", nil),
		KafkaGroupID:            getEnv("KAFKA_GROUP_ID", "rxdigitizer"),
		PrescriptionEventsTopic: getEnv("PRESCRIPTION_EVENTS_TOPIC", "prescription-events"),

		OCRAPIKey:      getEnv("OCR_API_KEY", ""),
		OCRBaseURL:     getEnv("OCR_BASE_URL", "https://api.ocr.space/parse/image"),
		OCRLanguage:    getEnv("OCR_LANGUAGE", "eng"),
		OCREngine:      getIntEnv("OCR_ENGINE", 2),
		OCRTimeout:     getDuration("OCR_TIMEOUT", 30*time.Second),
		OCRMaxAttempts: getIntEnv("OCR_MAX_ATTEMPTS", 2),

		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMModelName:   getEnv("LLM_MODEL_NAME", "llama3"),
		LLMTemperature: getFloatEnv("LLM_TEMPERATURE", 0.1),
		LLMTimeout:     getDuration("LLM_TIMEOUT", 60*time.Second),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "rxdigitizer"),
		JWTAudience: getEnv("JWT_AUDIENCE", "rxdigitizer-api"),
		JWTTTL:      getDuration("JWT_TTL", 12*time.Hour),

		DLPRulesPath: getEnv("DLP_RULES_PATH", ""),

		StatsCacheTTL: getDuration("STATS_CACHE_TTL", 5*time.Minute),
		StatsTopN:     getIntEnv("STATS_TOP_N", 10),

		GatewayRateLimitRPS:   getIntEnv("GATEWAY_RATE_LIMIT_RPS", 20),
		GatewayRateLimitBurst: getIntEnv("GATEWAY_RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getStringSliceEnv splits a comma separated list, dropping empty entries.
func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
