package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL   string
	RedisURL      string
	EncryptionKey string
	AdminCode     string
	Port          string
	Environment   string

	LogLevel  string
	LogFormat string

	AllowedOrigins []string
	// TrustedProxies lists the IPs or CIDRs whose forwarding headers are
	// believed. Requests from anywhere else are keyed by RemoteAddr.
	TrustedProxies []string

	Auth         AuthConfig
	Notification NotificationConfig
	Identity     IdentityConfig
	Kafka        KafkaConfig

	GeoIPDBPath string
}

// AuthConfig holds token and session settings for the login flow.
type AuthConfig struct {
	JWTSecret         string
	TokenTTL          time.Duration
	RefreshWindow     time.Duration
	CookieName        string
	SessionCookieName string
	PendingLoginTTL   time.Duration
	MaxLoginAttempts  int
	CookieSecure      bool
}

type NotificationConfig struct {
	AWSEnabled     bool
	AWSRegion      string
	EmailSendFrom  string
	TeamEmail      string
	AdminReviewURL string
}

// IdentityConfig describes the external identity-verification provider and
// the background job that polls it.
type IdentityConfig struct {
	APIURL       string
	APIUser      string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
	PollWorkers  int
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

func Load() *Config {
	env := strings.ToLower(getEnv("ENVIRONMENT", "development"))
	return &Config{
		DatabaseURL:    getEnv("DATABASE_URL", "gullin.db"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", "GullinBackend2018SecureKey123456"),
		AdminCode:      getEnv("ADMIN_CODE", "GULLIN_ADMIN_2018"),
		Port:           getEnv("PORT", "8080"),
		Environment:    env,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		TrustedProxies: splitCSV(getEnv("TRUSTED_PROXIES", "")),
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			TokenTTL:          getDuration("JWT_TTL", time.Hour),
			RefreshWindow:     getDuration("JWT_REFRESH_WINDOW", 24*time.Hour),
			CookieName:        getEnv("AUTH_COOKIE_NAME", "gullin_jwt"),
			SessionCookieName: getEnv("SESSION_COOKIE_NAME", "gullin_session"),
			PendingLoginTTL:   getDuration("PENDING_LOGIN_TTL", 10*time.Minute),
			MaxLoginAttempts:  getInt("MAX_LOGIN_ATTEMPTS", 5),
			CookieSecure:      env == "production",
		},
		Notification: NotificationConfig{
			AWSEnabled:     getBool("AWS_NOTIFICATIONS_ENABLED", false),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			EmailSendFrom:  getEnv("EMAIL_SEND_FROM", "Gullin <noreply@gullin.io>"),
			TeamEmail:      getEnv("TEAM_EMAIL", "team@gullin.io"),
			AdminReviewURL: getEnv("ADMIN_REVIEW_URL", "https://api.gullin.io/admin/id_verifications"),
		},
		Identity: IdentityConfig{
			APIURL:       getEnv("IDENTITY_API_URL", ""),
			APIUser:      getEnv("IDENTITY_API_USER", "gullin"),
			APIKey:       getEnv("IDENTITY_API_KEY", ""),
			Timeout:      getDuration("IDENTITY_API_TIMEOUT", 15*time.Second),
			PollInterval: getDuration("VERIFICATION_POLL_INTERVAL", 5*time.Minute),
			PollWorkers:  getInt("VERIFICATION_POLL_WORKERS", 4),
		},
		Kafka: KafkaConfig{
			Brokers:    splitCSV(getEnv("KAFKA_BROKERS", "")),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "gullin.user-log"),
		},
		GeoIPDBPath: getEnv("GEOIP_DB_PATH", ""),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ValidateConfig returns an error for settings the service cannot start with.
// Weak but usable settings only produce warnings.
func ValidateConfig(cfg *Config) (warnings []string, err error) {
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 characters, got %d", len(cfg.EncryptionKey))
	}
	if cfg.Auth.TokenTTL <= 0 || cfg.Auth.RefreshWindow < cfg.Auth.TokenTTL {
		return nil, fmt.Errorf("JWT_REFRESH_WINDOW (%s) must be at least JWT_TTL (%s)", cfg.Auth.RefreshWindow, cfg.Auth.TokenTTL)
	}
	if cfg.Identity.PollInterval <= 0 {
		return nil, fmt.Errorf("VERIFICATION_POLL_INTERVAL must be positive")
	}
	if cfg.Auth.MaxLoginAttempts < 1 {
		return nil, fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}
	for _, proxy := range cfg.TrustedProxies {
		if !validProxy(proxy) {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q is neither an IP nor a CIDR", proxy)
		}
	}
	if cfg.Identity.PollWorkers < 1 {
		cfg.Identity.PollWorkers = 1
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		warnings = append(warnings, "JWT_SECRET should be at least 32 characters for security")
	}
	if cfg.IsProduction() && cfg.AdminCode == "GULLIN_ADMIN_2018" {
		warnings = append(warnings, "change ADMIN_CODE in production environment")
	}
	if cfg.Identity.APIURL == "" {
		warnings = append(warnings, "IDENTITY_API_URL is not set, ID verification hand-off will fail and retry every cycle")
	}
	return warnings, nil
}

func validProxy(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
