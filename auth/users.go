package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/templio/idgen"
)

// UsersSchema holds the users table DDL.
const UsersSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    google_id TEXT,
    avatar_url TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_google ON users(google_id) WHERE google_id IS NOT NULL;
`

var (
	// ErrBadCredentials is returned for an unknown email or wrong password.
	ErrBadCredentials = errors.New("auth: invalid email or password")
	// ErrEmailTaken is returned when creating a user whose email exists.
	ErrEmailTaken = errors.New("auth: email already registered")
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 8

// User is an account.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Users persists accounts.
type Users struct {
	DB    *sql.DB
	NewID idgen.Generator
}

// NewUsers creates a Users store on db. Apply UsersSchema first.
func NewUsers(db *sql.DB) *Users {
	return &Users{DB: db, NewID: idgen.Default}
}

// Create registers a password account.
func (u *Users) Create(ctx context.Context, email, name, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("auth: a valid email is required")
	}
	if len(password) < MinPasswordLen {
		return nil, fmt.Errorf("auth: password must be at least %d characters", MinPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	now := time.Now().UnixMilli()
	user := &User{ID: u.NewID(), Email: email, Name: strings.TrimSpace(name), CreatedAt: now, UpdatedAt: now}
	_, err = u.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, string(hash), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return user, nil
}

// Authenticate checks email and password.
func (u *Users) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var user User
	var hash string
	err := u.DB.QueryRowContext(ctx,
		`SELECT id, email, name, avatar_url, created_at, updated_at, password_hash FROM users WHERE email = ?`,
		normalizeEmail(email)).
		Scan(&user.ID, &user.Email, &user.Name, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth: lookup user: %w", err)
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return &user, nil
}

// Get returns the user with id, or nil if none.
func (u *Users) Get(ctx context.Context, id string) (*User, error) {
	var user User
	err := u.DB.QueryRowContext(ctx,
		`SELECT id, email, name, avatar_url, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Email, &user.Name, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: get user: %w", err)
	}
	return &user, nil
}

// UpdateName renames a user.
func (u *Users) UpdateName(ctx context.Context, id, name string) (*User, error) {
	res, err := u.DB.ExecContext(ctx,
		`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(name), time.Now().UnixMilli(), id)
	if err != nil {
		return nil, fmt.Errorf("auth: update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("auth: update user: %w", sql.ErrNoRows)
	}
	return u.Get(ctx, id)
}

// UpsertOAuth finds the account linked to an OAuth identity, links an
// existing account with the same email, or creates one.
func (u *Users) UpsertOAuth(ctx context.Context, ou *OAuthUser) (*User, error) {
	email := normalizeEmail(ou.Email)
	if email == "" {
		return nil, fmt.Errorf("auth: oauth profile has no email")
	}
	now := time.Now().UnixMilli()

	var id string
	err := u.DB.QueryRowContext(ctx,
		`SELECT id FROM users WHERE google_id = ? OR email = ? ORDER BY google_id IS NULL LIMIT 1`,
		ou.ProviderUserID, email).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = u.NewID()
		_, err = u.DB.ExecContext(ctx,
			`INSERT INTO users (id, email, name, google_id, avatar_url, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, email, ou.Name, ou.ProviderUserID, ou.AvatarURL, now, now)
	case err == nil:
		_, err = u.DB.ExecContext(ctx,
			`UPDATE users SET google_id = ?, avatar_url = ?, name = CASE WHEN name = '' THEN ? ELSE name END, updated_at = ? WHERE id = ?`,
			ou.ProviderUserID, ou.AvatarURL, ou.Name, now, id)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: upsert oauth user: %w", err)
	}
	return u.Get(ctx, id)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
