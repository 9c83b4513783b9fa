// CLAUDE:SUMMARY Service configuration (sanitize, inline, render, raster, limits, cache, rate limit) and YAML loader.
package templates

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/templio/inline"
	"github.com/hazyhaar/templio/raster"
	"github.com/hazyhaar/templio/render"
	"github.com/hazyhaar/templio/shield"
	"github.com/hazyhaar/templio/templates/internal/store"
)

// Config holds the template service configuration.
type Config struct {
	Sanitize  SanitizeConfig  `yaml:"sanitize"`
	Inline    inline.Config   `yaml:"inline"`
	Render    render.Config   `yaml:"render"`
	Raster    raster.Config   `yaml:"raster"`
	Limits    LimitsConfig    `yaml:"limits"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	// EventRetention bounds the business event log. Default 90 days.
	EventRetention time.Duration `yaml:"event_retention"`
}

// SanitizeConfig controls the preview sanitizer.
type SanitizeConfig struct {
	// ScrubStyleURLs drops style attributes carrying script URLs or CSS
	// expressions. Default true.
	ScrubStyleURLs *bool `yaml:"scrub_style_urls"`
}

// LimitsConfig bounds user input.
type LimitsConfig struct {
	MaxTitleLen       int `yaml:"max_title_len"`
	MaxDescriptionLen int `yaml:"max_description_len"`
	MaxHTMLBytes      int `yaml:"max_html_bytes"`
	PageSize          int `yaml:"page_size"`
}

// RateLimitConfig throttles the thumbnail endpoints per caller. Unset
// fields default to 20 requests per 60 seconds, enabled.
type RateLimitConfig struct {
	MaxRequests   int   `yaml:"max_requests"`
	WindowSeconds int   `yaml:"window_seconds"`
	Enabled       *bool `yaml:"enabled"`
}

// Rule returns the limiter rule for RateLimitRule.
func (c RateLimitConfig) Rule() shield.RateLimitConfig {
	return shield.RateLimitConfig{
		MaxRequests:   c.MaxRequests,
		WindowSeconds: c.WindowSeconds,
		Enabled:       c.Enabled == nil || *c.Enabled,
	}
}

// CacheConfig controls the per-user list cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

func (c *Config) defaults() {
	if c.Sanitize.ScrubStyleURLs == nil {
		on := true
		c.Sanitize.ScrubStyleURLs = &on
	}
	if c.Limits.MaxTitleLen <= 0 {
		c.Limits.MaxTitleLen = 200
	}
	if c.Limits.MaxDescriptionLen <= 0 {
		c.Limits.MaxDescriptionLen = 1000
	}
	if c.Limits.MaxHTMLBytes <= 0 {
		c.Limits.MaxHTMLBytes = 10 * 1024 * 1024
	}
	if c.Limits.PageSize <= 0 {
		c.Limits.PageSize = 6
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = 20
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.RateLimit.Enabled == nil {
		on := true
		c.RateLimit.Enabled = &on
	}
	if c.EventRetention <= 0 {
		c.EventRetention = 90 * 24 * time.Hour
	}
}

// MaxScreenshotBytes is the largest data URI the store accepts.
const MaxScreenshotBytes = store.MaxScreenshotBytes

// LoadConfigFile reads a YAML config file. Zero values are filled in when
// the config is used.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
