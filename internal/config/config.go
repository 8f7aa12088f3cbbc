package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string
	AppName string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	ResetStore string // "dynamo" | "redis" | "memory"
	RedisURL   string

	OTPTTL           time.Duration
	OTPMaxAttempts   int
	OTPLength        int
	OTPHashSecret    string
	OTPHasher        string // "hmac" | "bcrypt"
	OTPRetention     time.Duration
	EnumerationDelay time.Duration
	ResetTokenSecret string
	ResetTokenTTL    time.Duration

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string

	GoogleClientID     string
	AllowedEmailDomain string
	AdminEmails        []string
	AllowedOrigins     []string // CORS allowed origins
	TrustProxyHeaders  bool     // only behind a proxy that overwrites X-Forwarded-For
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users            string
	Directory        string
	ResetSessions    string
	ResetRedemptions string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),
		AppName: getEnv("APP_NAME", "AI-LAB"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:            getEnv("DYNAMO_TABLE_USERS", "users"),
			Directory:        getEnv("DYNAMO_TABLE_DIRECTORY", "login_directory"),
			ResetSessions:    getEnv("DYNAMO_TABLE_RESET_SESSIONS", "reset_sessions"),
			ResetRedemptions: getEnv("DYNAMO_TABLE_RESET_REDEMPTIONS", "reset_redemptions"),
		},

		ResetStore: getEnv("RESET_STORE", "dynamo"),
		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379/0"),

		OTPTTL:           getEnvDuration("OTP_TTL", 10*time.Minute),
		OTPMaxAttempts:   getEnvInt("OTP_MAX_ATTEMPTS", 5),
		OTPLength:        getEnvInt("OTP_LENGTH", 6),
		OTPHashSecret:    getEnv("OTP_HASH_SECRET", ""),
		OTPHasher:        getEnv("OTP_HASHER", "hmac"),
		OTPRetention:     getEnvDuration("OTP_RETENTION_GRACE", 10*time.Minute),
		EnumerationDelay: getEnvDuration("ENUMERATION_DELAY", 40*time.Millisecond),
		ResetTokenSecret: getEnv("RESET_TOKEN_SECRET", ""),
		ResetTokenTTL:    getEnvDuration("RESET_TOKEN_TTL", 15*time.Minute),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 24*time.Hour),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SNSRegion:    getEnv("SNS_REGION", "us-east-1"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		AllowedEmailDomain: strings.ToLower(getEnv("ALLOWED_EMAIL_DOMAIN", "sastra.ac.in")),
		AdminEmails:        splitList(getEnv("ADMIN_EMAILS", "")),
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustProxyHeaders:  getEnvBool("TRUST_PROXY_HEADERS", false),
	}
}

// IsDevelopment reports whether insecure development fallbacks are allowed.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// splitList parses a comma-separated list, lower-casing and dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
