package auth

import "net/http"

// CookieName is the session cookie.
const CookieName = "token"

// SetTokenCookie writes token as an HttpOnly, SameSite=Lax cookie living
// maxAge seconds. SameSite is Lax: the OAuth callback arrives as a
// cross-site navigation.
func SetTokenCookie(w http.ResponseWriter, token string, maxAge int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// ClearTokenCookie expires the session cookie.
func ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// isSecure reports whether r arrived over TLS, directly or via a proxy.
func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
