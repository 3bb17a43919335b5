package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Security SecurityConfig
	Mail     MailConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds bearer token configuration
type JWTConfig struct {
	Secret      string
	TokenExpiry time.Duration
	Issuer      string
}

// SecurityConfig holds lockout, session, and 2FA policy configuration
type SecurityConfig struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
	SessionTimeout    time.Duration
	MaxSessions       int
	TOTPTimeStep      time.Duration
	TOTPWindow        int
	ResetTokenExpiry  time.Duration
}

// MailConfig holds outbound SMTP configuration for reset/2FA notices
type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	ResetURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "studentid"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			TokenExpiry: getDurationEnv("JWT_EXPIRY", 24*time.Hour),
			Issuer:      getEnv("JWT_ISSUER", "studentid-portal"),
		},
		Security: SecurityConfig{
			MaxFailedAttempts: getIntEnv("SECURITY_MAX_FAILED_ATTEMPTS", 5),
			LockDuration:      getDurationEnv("SECURITY_LOCK_DURATION", 15*time.Minute),
			SessionTimeout:    getDurationEnv("SECURITY_SESSION_TIMEOUT", 24*time.Hour),
			MaxSessions:       getIntEnv("SECURITY_MAX_SESSIONS", 5),
			TOTPTimeStep:      getDurationEnv("SECURITY_TOTP_STEP", 30*time.Second),
			TOTPWindow:        getIntEnv("SECURITY_TOTP_WINDOW", 1),
			ResetTokenExpiry:  getDurationEnv("SECURITY_RESET_TOKEN_EXPIRY", time.Hour),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", "noreply@studentid.local"),
			ResetURL: getEnv("RESET_URL_BASE", "http://localhost:3000/reset-password"),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Values use time.ParseDuration syntax (e.g. "30s", "15m", "24h").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getIntEnv returns integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
