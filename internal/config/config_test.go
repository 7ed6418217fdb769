package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"TMINUS_ADDR", "ENV", "TMINUS_DATA_DIR", "REDIS_URL",
		"TMINUS_ALLOWED_ORIGINS", "TMINUS_RECONCILE_SCHEDULE",
		"TMINUS_RECONCILE_ENABLED",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.Addr)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("expected default env to be development")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("expected default allowed origins [*], got %v", cfg.AllowedOrigins)
	}
	if cfg.ReconcileSchedule == "" {
		t.Fatal("expected a default reconcile schedule")
	}
	if !cfg.ReconcileEnabled {
		t.Fatal("expected reconciliation to default to enabled")
	}

	os.Setenv("TMINUS_RECONCILE_ENABLED", "false")
	defer os.Unsetenv("TMINUS_RECONCILE_ENABLED")
	if Load().ReconcileEnabled {
		t.Fatal("expected TMINUS_RECONCILE_ENABLED=false to disable reconciliation")
	}
}

func TestSplitCSV(t *testing.T) {
	cases := map[string][]string{
		"":                          nil,
		"*":                         {"*"},
		"https://a.com,https://b.com": {"https://a.com", "https://b.com"},
	}
	for in, want := range cases {
		got := splitCSV(in)
		if len(got) != len(want) {
			t.Fatalf("splitCSV(%q) = %v, want %v", in, got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("splitCSV(%q) = %v, want %v", in, got, want)
			}
		}
	}
}
