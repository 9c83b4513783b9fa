package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the session token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	AuthProvider string `json:"auth_provider,omitempty"` // "local", "google"
}
