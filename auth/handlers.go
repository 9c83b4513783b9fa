package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/hazyhaar/templio/idgen"
)

const stateCookie = "oauth_state"

var oauthState = idgen.NanoID(32)

// Handlers serves the /auth endpoints.
type Handlers struct {
	Users    *Users
	Sessions *Sessions
	// Google is nil when Google sign-in is not configured.
	Google *oauth2.Config
	// AfterLogin is where the OAuth callback redirects. Default "/".
	AfterLogin string
}

// Routes mounts the endpoints on r. Routes under /me require a session.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	if h.Google != nil {
		r.Get("/google", h.googleStart)
		r.Get("/google/callback", h.googleCallback)
	}
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/me", h.me)
		r.Patch("/me", h.updateMe)
	})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	user, err := h.Users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrBadCredentials) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sign-in failed, please retry"})
		return
	}
	token, err := h.Sessions.SignIn(w, r, user, "local")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sign-in failed, please retry"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.SignOut(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.Get(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil || user == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) updateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	userID := GetClaims(r.Context()).UserID
	user, err := h.Users.UpdateName(r.Context(), userID, req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "update failed, please retry"})
		return
	}
	h.Sessions.UserUpdated(r.Context(), userID)
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) googleStart(w http.ResponseWriter, r *http.Request) {
	state := oauthState()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   isSecure(r),
	})
	http.Redirect(w, r, h.Google.AuthCodeURL(state), http.StatusFound)
}

func (h *Handlers) googleCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || c.Value != r.URL.Query().Get("state") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid oauth state"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	profile, _, err := FetchGoogleUser(r.Context(), h.Google, r.URL.Query().Get("code"))
	if err != nil {
		h.Sessions.logger().WarnContext(r.Context(), "auth: google sign-in failed", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "google sign-in failed"})
		return
	}
	user, err := h.Users.UpsertOAuth(r.Context(), profile)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sign-in failed, please retry"})
		return
	}
	if _, err := h.Sessions.SignIn(w, r, user, "google"); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sign-in failed, please retry"})
		return
	}
	dest := h.AfterLogin
	if dest == "" {
		dest = "/"
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
