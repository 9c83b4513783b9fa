package templates

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a template does not exist or belongs to
// another user.
var ErrNotFound = errors.New("templates: not found")

// ErrConflict is returned by Update when the template was changed by
// another request after it was read.
var ErrConflict = errors.New("templates: changed by another request")

// ValidationError rejects user input. Message is safe to show.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"error"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("templates: invalid %s: %s", e.Field, e.Message)
}

// StorageError wraps a database failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("templates: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AuthError is returned when the context carries no signed-in user.
type AuthError struct {
	Op string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("templates: %s: sign-in required", e.Op)
}
