package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "JWT_ACCESS_EXPIRY", "VIEWS_CONFIG_PATH", "RESCUE_ADMIN_EMAILS"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.JWTAccessExpiry != time.Hour {
		t.Errorf("JWTAccessExpiry = %v, want 1h", cfg.JWTAccessExpiry)
	}
	if cfg.ViewsConfigPath != "configs/views.yaml" {
		t.Errorf("ViewsConfigPath = %q", cfg.ViewsConfigPath)
	}
	if len(cfg.RescueAdmins()) != 0 {
		t.Error("rescue admin list must be empty unless configured")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_ACCESS_EXPIRY", "5m")
	t.Setenv("RESCUE_ADMIN_EMAILS", " Ops@Example.com, ,root@example.com ")
	t.Setenv("SITE_URL", "https://portal.example.com/")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.JWTAccessExpiry != 5*time.Minute {
		t.Errorf("JWTAccessExpiry = %v", cfg.JWTAccessExpiry)
	}
	want := []string{"ops@example.com", "root@example.com"}
	if got := cfg.RescueAdmins(); !reflect.DeepEqual(got, want) {
		t.Errorf("RescueAdmins() = %v, want %v", got, want)
	}
	if cfg.SiteURL != "https://portal.example.com" {
		t.Errorf("SiteURL = %q", cfg.SiteURL)
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("PORTAL_URL", "https://api.example.com/")
	t.Setenv("PORTAL_SESSION_FILE", "/tmp/s.json")
	t.Setenv("AUTH_SAFETY_VALVE", "not-a-duration")
	t.Setenv("AUTH_FETCH_TIMEOUT", "3s")
	t.Setenv("NOTIFY_POLL_INTERVAL", "")

	cfg := LoadClient()

	if cfg.PortalURL != "https://api.example.com" {
		t.Errorf("PortalURL = %q", cfg.PortalURL)
	}
	if cfg.SessionFile != "/tmp/s.json" {
		t.Errorf("SessionFile = %q", cfg.SessionFile)
	}
	if cfg.SafetyValve != 15*time.Second {
		t.Errorf("SafetyValve = %v, want fallback 15s", cfg.SafetyValve)
	}
	if cfg.FetchTimeout != 3*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	if cfg.NotifyPollInterval != 30*time.Second {
		t.Errorf("NotifyPollInterval = %v", cfg.NotifyPollInterval)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "n", DBSSLMode: "disable"}
	want := "host=db user=u password=p dbname=n port=5432 sslmode=disable TimeZone=UTC"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q", got)
	}
}
