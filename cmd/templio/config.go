package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/templio/auth"
	"github.com/hazyhaar/templio/horosafe"
	"github.com/hazyhaar/templio/templates"
)

// appConfig is the whole config file: server and auth sections next to the
// template service sections.
type appConfig struct {
	Server    serverConfig      `yaml:"server"`
	Auth      authConfig        `yaml:"auth"`
	Templates *templates.Config `yaml:"-"`
}

type serverConfig struct {
	Port         string `yaml:"port"`
	DBPath       string `yaml:"db_path"`
	PublicOrigin string `yaml:"public_origin"`
}

type authConfig struct {
	SessionSecret string           `yaml:"session_secret"`
	SessionTTL    time.Duration    `yaml:"session_ttl"`
	Google        auth.OAuthConfig `yaml:"google"`
}

// loadConfig reads path (optional) and applies environment overrides.
func loadConfig(path string) (*appConfig, error) {
	cfg := &appConfig{Templates: &templates.Config{}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if cfg.Templates, err = templates.LoadConfigFile(path); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.defaults()
	return cfg, nil
}

func (c *appConfig) applyEnv() {
	c.Server.Port = env("PORT", c.Server.Port)
	c.Server.DBPath = env("DB_PATH", c.Server.DBPath)
	c.Server.PublicOrigin = env("PUBLIC_ORIGIN", c.Server.PublicOrigin)
	c.Auth.SessionSecret = env("SESSION_SECRET", c.Auth.SessionSecret)
	c.Auth.Google.ClientID = env("GOOGLE_CLIENT_ID", c.Auth.Google.ClientID)
	c.Auth.Google.ClientSecret = env("GOOGLE_CLIENT_SECRET", c.Auth.Google.ClientSecret)
	c.Auth.Google.RedirectURL = env("GOOGLE_REDIRECT_URL", c.Auth.Google.RedirectURL)

	t := c.Templates
	t.Render.RemoteURL = env("CHROME_URL", t.Render.RemoteURL)
	t.Render.Bin = env("CHROME_BIN", t.Render.Bin)
	if v, err := strconv.ParseBool(os.Getenv("CHROME_NO_SANDBOX")); err == nil {
		t.Render.NoSandbox = v
	}
	t.Inline.ProxyURL = env("IMAGE_PROXY", t.Inline.ProxyURL)
}

func (c *appConfig) defaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = "data/templio.db"
	}
	if c.Server.PublicOrigin == "" {
		c.Server.PublicOrigin = "http://localhost:" + c.Server.Port
	}
	if c.Templates.Inline.Origin == "" {
		c.Templates.Inline.Origin = c.Server.PublicOrigin
	}
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = 7 * 24 * time.Hour
	}
	if c.Auth.Google.ClientID != "" && c.Auth.Google.RedirectURL == "" {
		c.Auth.Google.RedirectURL = c.Server.PublicOrigin + "/auth/google/callback"
	}
}

// jwtSecret derives the 32-byte signing key from the configured secret.
func (c *appConfig) jwtSecret() ([]byte, error) {
	if c.Auth.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	sum := sha256.Sum256([]byte(c.Auth.SessionSecret))
	secret := sum[:]
	if err := horosafe.ValidateSecret(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
