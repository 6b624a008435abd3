package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_ServesRecordedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBootstrap("settled", 120*time.Millisecond)
	c.RecordProfileFetch("bootstrap", "ok")
	c.RecordAuthEvent("SIGNED_IN")
	c.RecordDecision("admin", "deny")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Result().Body)
	for _, name := range []string{
		`portal_auth_bootstrap_total{outcome="settled"} 1`,
		"portal_auth_bootstrap_duration_seconds_count 1",
		`portal_profile_fetch_total{outcome="ok",source="bootstrap"} 1`,
		`portal_auth_events_total{kind="SIGNED_IN"} 1`,
		`portal_role_gate_decisions_total{decision="deny",view="admin"} 1`,
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestNewCollector_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}
