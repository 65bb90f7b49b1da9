// Package auth registers and authenticates email/password accounts and
// issues the session tokens that identify a signed-in user.
package auth

import (
	"context"
	"time"

	"lifelog/internal/core"
)

// User is a stored account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity returns the identity every query of this user is scoped to.
func (u *User) Identity() core.Identity {
	return core.Identity{UID: u.ID, Email: u.Email}
}

// Authenticator defines the interface for authentication implementations.
type Authenticator interface {
	// Register creates a new account and returns it.
	Register(ctx context.Context, email, credential string) (*User, error)
	// Authenticate verifies credentials and returns the matching account.
	Authenticate(ctx context.Context, email, credential string) (*User, error)
	// ValidateCredential checks the credential before anything is stored.
	ValidateCredential(credential string) error
}
