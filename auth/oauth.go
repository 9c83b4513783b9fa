package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/hazyhaar/templio/horosafe"
)

// OAuthConfig holds the Google client registration.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// googleUserinfoURL is a variable so tests can point it at a fake server.
var googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// OAuthUser is the profile returned by the provider.
type OAuthUser struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
}

// NewGoogleProvider returns the oauth2 config for Google sign-in.
func NewGoogleProvider(cfg OAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// FetchGoogleUser exchanges code for a token and reads the profile.
// Unverified emails are rejected.
func FetchGoogleUser(ctx context.Context, oauthCfg *oauth2.Config, code string) (*OAuthUser, *oauth2.Token, error) {
	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: oauth exchange: %w", err)
	}

	client := oauthCfg.Client(ctx, token)
	resp, err := client.Get(googleUserinfoURL)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: fetch google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
		return nil, nil, fmt.Errorf("auth: google userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, nil, fmt.Errorf("auth: decode google userinfo: %w", err)
	}
	if !info.VerifiedEmail {
		return nil, nil, fmt.Errorf("auth: google email %s is not verified", info.Email)
	}

	return &OAuthUser{
		ProviderUserID: info.ID,
		Email:          info.Email,
		Name:           info.Name,
		AvatarURL:      info.Picture,
	}, token, nil
}
