package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	CORS         CORSConfig
	S3           S3Config
	Redis        RedisConfig
	Verification VerificationConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	BaseURL         string        // CloudFront or S3 direct URL
	PresignTTL      time.Duration // 문서 열람 URL 유효 시간
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// VerificationConfig controls the credential review workflow.
type VerificationConfig struct {
	PageSize       int
	AllowRedecide  bool   // 이미 심사된 자격증명의 재심사 허용 여부
	SchedulerOn    bool   // 정합성 점검 스케줄러 사용 여부
	ReconcileSpec  string // cron 표현식: 업체 인증 플래그 재동기화
	ExpiryScanSpec string // cron 표현식: 만료 자격증명 리포트
	ReconcileBatch int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "1234"),
			DBName:   getEnv("DB_NAME", "marketplace"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		S3: S3Config{
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			Bucket:          getEnv("AWS_S3_BUCKET", "marketplace-credentials"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			BaseURL:         getEnv("AWS_S3_BASE_URL", ""),
			PresignTTL:      parseDuration(getEnv("AWS_S3_PRESIGN_TTL", "10m"), 10*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		Verification: VerificationConfig{
			PageSize:       parseInt(getEnv("VERIFICATION_PAGE_SIZE", "10"), 10),
			AllowRedecide:  parseBool(getEnv("VERIFICATION_ALLOW_REDECIDE", "false")),
			SchedulerOn:    parseBool(getEnv("VERIFICATION_SCHEDULER_ENABLED", "true")),
			ReconcileSpec:  getEnv("VERIFICATION_RECONCILE_CRON", "*/15 * * * *"),
			ExpiryScanSpec: getEnv("VERIFICATION_EXPIRY_CRON", "0 9 * * *"),
			ReconcileBatch: parseInt(getEnv("VERIFICATION_RECONCILE_BATCH", "100"), 100),
		},
	}

	if config.Verification.PageSize <= 0 {
		return nil, fmt.Errorf("VERIFICATION_PAGE_SIZE must be positive, got %d", config.Verification.PageSize)
	}

	return config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("Invalid integer %s, using default %d", s, fallback)
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func parseSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
