package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Emails that fix-profile creates as admin. Operator supplied only.
	RescueAdminEmails string

	// Server
	Port        string
	CORSOrigins string
	SiteURL     string

	// View registry
	ViewsConfigPath string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "agency_portal"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "1h"), time.Hour),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		RescueAdminEmails: getEnv("RESCUE_ADMIN_EMAILS", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		SiteURL:     strings.TrimRight(getEnv("SITE_URL", "http://localhost:3000"), "/"),

		ViewsConfigPath: getEnv("VIEWS_CONFIG_PATH", "configs/views.yaml"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// RescueAdmins returns the normalized rescue admin allow-list.
func (c *Config) RescueAdmins() []string {
	var out []string
	for _, e := range ParseCSV(c.RescueAdminEmails) {
		out = append(out, strings.ToLower(e))
	}
	return out
}

// ClientConfig drives portalctl and any other portal client.
type ClientConfig struct {
	PortalURL          string
	SessionFile        string
	SafetyValve        time.Duration
	FetchTimeout       time.Duration
	NotifyPollInterval time.Duration
}

func LoadClient() *ClientConfig {
	return &ClientConfig{
		PortalURL:          strings.TrimRight(getEnv("PORTAL_URL", "http://localhost:8080"), "/"),
		SessionFile:        getEnv("PORTAL_SESSION_FILE", defaultSessionFile()),
		SafetyValve:        parseDuration(getEnv("AUTH_SAFETY_VALVE", "15s"), 15*time.Second),
		FetchTimeout:       parseDuration(getEnv("AUTH_FETCH_TIMEOUT", "10s"), 10*time.Second),
		NotifyPollInterval: parseDuration(getEnv("NOTIFY_POLL_INTERVAL", "30s"), 30*time.Second),
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".portal-session.json"
	}
	return filepath.Join(dir, "agency-portal", "session.json")
}

func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
