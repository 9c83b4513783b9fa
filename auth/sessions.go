// CLAUDE:SUMMARY Cookie/Bearer JWT sessions: soft-parsing middleware with sliding refresh, sign-in/out, and publication of session events to the hub.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/templio/kit"
	"github.com/hazyhaar/templio/session"
)

type claimsKey struct{}

// Sessions issues and verifies session tokens and reports every session
// transition to the hub.
type Sessions struct {
	Secret []byte
	// TTL is the token lifetime. Default 7 days.
	TTL time.Duration
	// RefreshWindow re-issues tokens expiring within it. Default TTL/2.
	RefreshWindow time.Duration
	Hub           *session.Hub
	Logger        *slog.Logger
}

func (s *Sessions) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Sessions) refreshWindow() time.Duration {
	if s.RefreshWindow <= 0 {
		return s.ttl() / 2
	}
	return s.RefreshWindow
}

func (s *Sessions) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Sessions) publish(ctx context.Context, t session.EventType, userID string) {
	if s.Hub != nil {
		s.Hub.Publish(ctx, session.Event{Type: t, UserID: userID})
	}
}

// SignIn issues a token for user, sets the cookie and publishes signed-in.
func (s *Sessions) SignIn(w http.ResponseWriter, r *http.Request, user *User, provider string) (string, error) {
	token, err := s.issue(w, r, &Claims{
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		AuthProvider: provider,
	})
	if err != nil {
		return "", err
	}
	s.publish(r.Context(), session.SignedIn, user.ID)
	return token, nil
}

// SignOut clears the cookie and publishes signed-out for the current user.
func (s *Sessions) SignOut(w http.ResponseWriter, r *http.Request) {
	ClearTokenCookie(w)
	if c := GetClaims(r.Context()); c != nil {
		s.publish(r.Context(), session.SignedOut, c.UserID)
	}
}

// UserUpdated publishes user-updated for userID.
func (s *Sessions) UserUpdated(ctx context.Context, userID string) {
	s.publish(ctx, session.UserUpdated, userID)
}

func (s *Sessions) issue(w http.ResponseWriter, r *http.Request, c *Claims) (string, error) {
	token, err := GenerateToken(s.Secret, c, s.ttl())
	if err != nil {
		return "", err
	}
	SetTokenCookie(w, token, int(s.ttl().Seconds()), isSecure(r))
	return token, nil
}

// Middleware reads the token from the cookie or an Authorization Bearer
// header. A valid token puts its claims and user id in the context; the
// first request of a session in this process publishes
// initial-session-restored; a cookie token close to expiry is re-issued and
// token-refreshed published. Missing or invalid tokens pass through
// anonymously; use RequireUser to enforce.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, fromCookie := "", false
		if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
			tokenStr, fromCookie = c.Value, true
		} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenStr = strings.TrimPrefix(h, "Bearer ")
		}
		if tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ValidateToken(s.Secret, tokenStr)
		if err != nil {
			if fromCookie {
				ClearTokenCookie(w)
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		ctx = kit.WithUserID(ctx, claims.UserID)

		if s.Hub != nil {
			s.Hub.Restore(ctx, claims.UserID)
		}
		if fromCookie && claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) < s.refreshWindow() {
			fresh := &Claims{UserID: claims.UserID, Email: claims.Email, Name: claims.Name, AuthProvider: claims.AuthProvider}
			if _, err := s.issue(w, r, fresh); err != nil {
				s.logger().WarnContext(ctx, "auth: token refresh failed", "user_id", claims.UserID, "error", err)
			} else {
				s.publish(ctx, session.TokenRefreshed, claims.UserID)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims returns the session claims in ctx, or nil.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// RequireUser answers 401 JSON when the request carries no valid session.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
