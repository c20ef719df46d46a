package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	CORSOrigin    string
	// Session layer
	SessionSecret string
	SessionTTL    time.Duration
	PageTTL       time.Duration
	RedisURL      string
	// Wallet / network
	Domain          string
	RequiredChainID int64
	NetworkName     string
	// Profile record backend: postgres, git, minio or memory
	ProfileBackend string
	StreamsDir     string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() Config {
	return Config{
		Addr:            getenv("API_ADDR", ":8787"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		MigrationsDir:   getenv("PROFILE_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:      getenv("PROFILE_CORS_ORIGIN", "*"),
		SessionSecret:   getenv("PROFILE_SESSION_SECRET", "profile-dev-secret"),
		SessionTTL:      time.Duration(getenvInt("PROFILE_SESSION_TTL_SECONDS", 86400)) * time.Second,
		PageTTL:         time.Duration(getenvInt("PROFILE_PAGE_TTL_SECONDS", 3600)) * time.Second,
		RedisURL:        getenv("REDIS_URL", ""),
		Domain:          getenv("PROFILE_DOMAIN", "localhost:8787"),
		RequiredChainID: int64(getenvInt("PROFILE_REQUIRED_CHAIN_ID", 5)),
		NetworkName:     getenv("PROFILE_NETWORK_NAME", "Goerli"),
		ProfileBackend:  strings.ToLower(getenv("PROFILE_BACKEND", "memory")),
		StreamsDir:      getenv("PROFILE_STREAMS_DIR", "./data/streams"),
		// MinIO - only used when PROFILE_BACKEND=minio
		MinioEndpoint:  getenv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getenv("MINIO_BUCKET", "basic-profiles"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
