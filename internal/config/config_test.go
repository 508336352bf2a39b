package config

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("MINT_LEASE", "")
	t.Setenv("ORGANIZER_WALLETS", "")

	cfg := Load()
	if cfg.LedgerBackend != LedgerBackendLocal {
		t.Errorf("LedgerBackend = %q, want %q", cfg.LedgerBackend, LedgerBackendLocal)
	}
	if cfg.MintLease != 10*time.Minute {
		t.Errorf("MintLease = %v, want 10m", cfg.MintLease)
	}
	if cfg.HasOrganizerAllowList() {
		t.Error("expected no organizer allow-list by default")
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"45", 45 * time.Second},
		{"garbage", time.Hour},
		{"", time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := getEnvDuration("TEST_DURATION", time.Hour); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseList(t *testing.T) {
	got := parseList(" 0:abc , ,0:def,")
	if len(got) != 2 || got[0] != "0:abc" || got[1] != "0:def" {
		t.Errorf("parseList() = %v", got)
	}
	if parseList("") != nil {
		t.Error("parseList(\"\") should be nil")
	}
}

func TestValidateFallsBackToLocal(t *testing.T) {
	cfg := &Config{LedgerBackend: "ethereum", MintLease: time.Minute, LedgerConfirmTimeout: time.Second}
	cfg.Validate(zap.NewNop())
	if cfg.LedgerBackend != LedgerBackendLocal {
		t.Errorf("LedgerBackend = %q, want fallback %q", cfg.LedgerBackend, LedgerBackendLocal)
	}
}
