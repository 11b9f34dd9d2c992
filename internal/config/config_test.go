package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("SAFEFLAG_SERVER_PORT", ":9999")
	t.Setenv("SAFEFLAG_RISK_PROVIDER", "heuristic")
	t.Setenv("SAFEFLAG_DATABASE_DRIVER", "sqlite")

	cfg := Load()

	if cfg.Server.Port != ":9999" {
		t.Errorf("expected env override for port, got %q", cfg.Server.Port)
	}
	if cfg.Risk.Provider != "heuristic" {
		t.Errorf("expected heuristic provider, got %q", cfg.Risk.Provider)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.Risk.Timeout != 10*time.Second {
		t.Errorf("expected default risk timeout 10s, got %v", cfg.Risk.Timeout)
	}
	if cfg.Telemetry.BlastRadiusWindow != 24*time.Hour {
		t.Errorf("expected 24h window, got %v", cfg.Telemetry.BlastRadiusWindow)
	}
	if cfg.Risk.Policy.ZeroTrafficCap != 7 {
		t.Errorf("expected zero traffic cap 7, got %d", cfg.Risk.Policy.ZeroTrafficCap)
	}
	if len(cfg.Risk.Policy.SensitiveKeywords) != 3 {
		t.Errorf("expected 3 sensitive keywords, got %v", cfg.Risk.Policy.SensitiveKeywords)
	}
}
