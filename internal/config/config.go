package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Otp       OtpConfig
	Totp      TotpConfig
	Parental  ParentalConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	BcryptCost         int
	CleanupInterval    time.Duration
}

// RateLimitConfig configures the two limiter tiers: a strict windowed limiter
// with a block duration for authentication endpoints, and a coarse per-IP
// limiter for general traffic. The general tier has no block period; httprate
// simply refuses requests past the window budget.
type RateLimitConfig struct {
	AuthLimit     int
	AuthWindow    time.Duration
	AuthBlock     time.Duration
	GeneralLimit  int
	GeneralWindow time.Duration
}

type OtpConfig struct {
	CodeLength  int
	Expiry      time.Duration
	SendTimeout time.Duration
}

type TotpConfig struct {
	Issuer string
	Skew   uint // accepted adjacent time steps on each side
}

// ParentalConfig holds defaults applied when a parent has not configured
// explicit controls for a child account.
type ParentalConfig struct {
	DefaultDailySpendLimit int64 // cents
	DefaultAllowedStart    string
	DefaultAllowedEnd      string
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "guard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			BcryptCost:         getEnvAsInt("BCRYPT_COST", 12),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			AuthLimit:     getEnvAsInt("RATE_LIMIT_AUTH_MAX", 5),
			AuthWindow:    getEnvAsDuration("RATE_LIMIT_AUTH_WINDOW", 15*time.Minute),
			AuthBlock:     getEnvAsDuration("RATE_LIMIT_AUTH_BLOCK", 30*time.Minute),
			GeneralLimit:  getEnvAsInt("RATE_LIMIT_GENERAL_MAX", 100),
			GeneralWindow: getEnvAsDuration("RATE_LIMIT_GENERAL_WINDOW", 15*time.Minute),
		},
		Otp: OtpConfig{
			CodeLength:  getEnvAsInt("OTP_CODE_LENGTH", 6),
			Expiry:      getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			SendTimeout: getEnvAsDuration("OTP_SEND_TIMEOUT", 10*time.Second),
		},
		Totp: TotpConfig{
			Issuer: getEnv("TOTP_ISSUER", "Sprout Market"),
			Skew:   uint(getEnvAsInt("TOTP_SKEW", 1)),
		},
		Parental: ParentalConfig{
			DefaultDailySpendLimit: int64(getEnvAsInt("PARENTAL_DAILY_SPEND_LIMIT_CENTS", 2500)),
			DefaultAllowedStart:    getEnv("PARENTAL_ALLOWED_START", "09:00"),
			DefaultAllowedEnd:      getEnv("PARENTAL_ALLOWED_END", "21:00"),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@sproutmarket.example"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Otp.CodeLength < 4 || cfg.Otp.CodeLength > 6 {
		return nil, fmt.Errorf("OTP_CODE_LENGTH must be between 4 and 6 (got %d)", cfg.Otp.CodeLength)
	}

	if cfg.Auth.BcryptCost < 10 || cfg.Auth.BcryptCost > 31 {
		return nil, fmt.Errorf("BCRYPT_COST must be between 10 and 31 (got %d)", cfg.Auth.BcryptCost)
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
