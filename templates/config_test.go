package templates

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()

	rule := cfg.RateLimit.Rule()
	if rule.MaxRequests != 20 || rule.WindowSeconds != 60 || !rule.Enabled {
		t.Fatalf("rate limit defaults = %+v", rule)
	}
	if !*cfg.Sanitize.ScrubStyleURLs {
		t.Fatal("style scrub should default on")
	}
	if cfg.Limits.PageSize != 6 || cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("limits=%+v cache=%+v", cfg.Limits, cfg.Cache)
	}
}

func TestLoadConfigFile_RateLimitDisabled(t *testing.T) {
	// WHAT: "enabled: false" survives defaults.
	// WHY: an explicit false looks like an unset field unless Enabled
	// can tell the two apart.
	path := filepath.Join(t.TempDir(), "templio.yaml")
	yaml := "rate_limit:\n  enabled: false\nlimits:\n  page_size: 12\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.defaults()

	rule := cfg.RateLimit.Rule()
	if rule.Enabled {
		t.Fatalf("rate limit re-enabled by defaults: %+v", rule)
	}
	// Unset siblings still get their defaults.
	if rule.MaxRequests != 20 || rule.WindowSeconds != 60 {
		t.Fatalf("rate limit fields = %+v", rule)
	}
	if cfg.Limits.PageSize != 12 || cfg.Limits.MaxTitleLen != 200 {
		t.Fatalf("limits = %+v", cfg.Limits)
	}
}

func TestRateLimitConfig_PartialOverride(t *testing.T) {
	cfg := Config{RateLimit: RateLimitConfig{MaxRequests: 5}}
	cfg.defaults()
	if rule := cfg.RateLimit.Rule(); rule.MaxRequests != 5 || rule.WindowSeconds != 60 || !rule.Enabled {
		t.Fatalf("rule = %+v", rule)
	}
}
