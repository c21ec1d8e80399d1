package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int

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

	// Kafka
	KafkaBrokers     []string
	KafkaGroupID     string
	TranscriptsTopic string
	StructuredTopic  string

	// Auth
	JWTSecret        string
	JWTIssuer        string
	JWTAudience      string
	JWTTTL           time.Duration
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// Guardrail
	GuardrailRulesPath string
	GuardrailEndpoint  string
	GuardrailTimeout   time.Duration

	// Extraction model
	ModelAPIKey  string
	ModelBaseURL string
	ModelName    string
	ModelTimeout time.Duration

	// Vault
	VaultCacheTTL time.Duration

	// Audit retry policy
	AuditMaxAttempts int
	AuditBaseDelay   time.Duration
	AuditMaxDelay    time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "sahayak"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "sahayak123"),
		PostgresDB:       getEnv("POSTGRES_DB", "sahayak"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "sahayak-platform"),
		TranscriptsTopic: getEnv("KAFKA_TRANSCRIPTS_TOPIC", "transcribed-encounters"),
		StructuredTopic:  getEnv("KAFKA_STRUCTURED_TOPIC", "structured-records"),

		JWTSecret:        getEnv("JWT_SECRET", "dev-secret-change-me-32"),
		JWTIssuer:        getEnv("JWT_ISSUER", "sahayak-platform"),
		JWTAudience:      getEnv("JWT_AUDIENCE", "sahayak-api"),
		JWTTTL:           getDuration("JWT_TTL", 12*time.Hour),
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),

		GuardrailRulesPath: getEnv("GUARDRAIL_RULES_PATH", ""),
		GuardrailEndpoint:  getEnv("GUARDRAIL_ENDPOINT", ""),
		GuardrailTimeout:   getDuration("GUARDRAIL_TIMEOUT", 10*time.Second),

		ModelAPIKey:  getEnv("MODEL_API_KEY", ""),
		ModelBaseURL: getEnv("MODEL_BASE_URL", "https://api.openai.com/v1"),
		ModelName:    getEnv("MODEL_NAME", "gpt-4"),
		ModelTimeout: getDuration("MODEL_TIMEOUT", 30*time.Second),

		VaultCacheTTL: getDuration("VAULT_CACHE_TTL", 15*time.Minute),

		AuditMaxAttempts: getIntEnv("AUDIT_MAX_ATTEMPTS", 5),
		AuditBaseDelay:   getDuration("AUDIT_BASE_DELAY", 50*time.Millisecond),
		AuditMaxDelay:    getDuration("AUDIT_MAX_DELAY", 2*time.Second),
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

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
