package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures service level configuration assembled from the environment.
type Config struct {
	Addr        string
	Environment string
	DatabaseURL string

	JWTSigningKey  string
	AdminTokenHash string // bcrypt hash of the admin token; empty disables admin endpoints

	Redis    Redis
	Kafka    Kafka
	Vision   Vision
	Blob     Blob
	Workflow Workflow
}

// Redis holds cache connection configuration.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds event pipeline configuration.
type Kafka struct {
	Brokers     string
	AuditTopic  string
	IssuedTopic string
}

// Vision holds the external document/face recognition API configuration.
type Vision struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	FaceCollection string
}

// Blob holds signed URL issuance configuration for stored images.
type Blob struct {
	BaseURL    string
	SigningKey string
	URLTTL     time.Duration
}

// Workflow holds the application lifecycle tuning knobs.
type Workflow struct {
	// ManualReviewThreshold is the face-match confidence (0-100) below which
	// an application is flagged for manual review.
	ManualReviewThreshold float64
	// AutoApprove enables system approval when confidence meets AutoApproveThreshold.
	AutoApprove          bool
	AutoApproveThreshold float64

	UINPrefix          string
	CredentialValidity time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:        envOr("CIVID_ADDR", ":8080"),
		Environment: envOr("CIVID_ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSigningKey:  envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),

		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:     os.Getenv("KAFKA_BROKERS"),
			AuditTopic:  envOr("KAFKA_AUDIT_TOPIC", "civid.audit.events"),
			IssuedTopic: envOr("KAFKA_ISSUED_TOPIC", "civid.credential.issued"),
		},
		Vision: Vision{
			BaseURL:        os.Getenv("VISION_BASE_URL"),
			APIKey:         os.Getenv("VISION_API_KEY"),
			Timeout:        envDuration("VISION_TIMEOUT", 10*time.Second),
			FaceCollection: envOr("VISION_FACE_COLLECTION", "civid-holders"),
		},
		Blob: Blob{
			BaseURL:    envOr("BLOB_BASE_URL", "http://localhost:8080/v1/blobs"),
			SigningKey: envOr("BLOB_SIGNING_KEY", "dev-blob-signing-key"),
			URLTTL:     envDuration("BLOB_URL_TTL", 15*time.Minute),
		},
		Workflow: Workflow{
			ManualReviewThreshold: envFloat("MANUAL_REVIEW_THRESHOLD", 85),
			AutoApprove:           os.Getenv("AUTO_APPROVE") == "true",
			AutoApproveThreshold:  envFloat("AUTO_APPROVE_THRESHOLD", 95),
			UINPrefix:             envOr("UIN_PREFIX", "CID"),
			CredentialValidity:    envDuration("CREDENTIAL_VALIDITY", 10*365*24*time.Hour),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
