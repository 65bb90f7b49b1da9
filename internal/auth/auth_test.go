package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lifelog/internal/core"
	"lifelog/internal/docstore/memory"
)

func newTestAuthenticator(t *testing.T) *PasswordAuthenticator {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	return NewPasswordAuthenticator(NewDocUserStorage(store)).WithCost(bcrypt.MinCost)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)

	u, err := a.Register(ctx, "  Ana@Example.com ", "correct horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID == "" || u.Email != "ana@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}
	if strings.Contains(u.PasswordHash, "correct horse") {
		t.Fatalf("password stored in clear")
	}

	got, err := a.Authenticate(ctx, "ANA@example.com", "correct horse")
	if err != nil || got.ID != u.ID {
		t.Fatalf("authenticate: %+v %v", got, err)
	}
	if _, err := a.Authenticate(ctx, "ana@example.com", "wrong pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := a.Authenticate(ctx, "nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)

	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"short password", "a@b.c", "short", ErrWeakPassword},
		{"no at sign", "nope", "long enough", ErrInvalidEmail},
		{"empty email", " ", "long enough", ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.Register(ctx, tc.email, tc.password); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := a.Register(ctx, "dup@example.com", "long enough"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := a.Register(ctx, "DUP@example.com", "long enough"); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("duplicate register: %v", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret-for-tests", time.Hour)
	id := core.Identity{UID: "u1", Email: "u1@example.com"}

	token, err := m.Generate(id)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Identity() != id {
		t.Fatalf("identity = %+v", claims.Identity())
	}

	other := NewJWTManager("another-secret", time.Hour)
	if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature accepted: %v", err)
	}
	if _, err := m.Validate(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestJWTExpiry(t *testing.T) {
	m := NewJWTManager("secret-for-tests", time.Minute)
	start := time.Now()
	m.now = func() time.Time { return start }

	token, err := m.Generate(core.Identity{UID: "u1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}
