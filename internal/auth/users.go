package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lifelog/internal/docstore"
)

// DocUserStorage keeps accounts in the users collection of a docstore.
type DocUserStorage struct {
	store docstore.Store
}

var _ UserStorage = (*DocUserStorage)(nil)

func NewDocUserStorage(store docstore.Store) *DocUserStorage {
	return &DocUserStorage{store: store}
}

// CreateUser assigns an id and stores u. The email uniqueness check and the
// insert run in one batch.
func (s *DocUserStorage) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return s.store.Batch(ctx, func(tx docstore.Tx) error {
		existing, err := tx.Find(ctx, docstore.Where(docstore.Users, "email", u.Email))
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if len(existing) > 0 {
			return ErrEmailExists
		}
		return tx.Set(docstore.Users, u.ID, docstore.Fields{
			"email":        u.Email,
			"passwordHash": u.PasswordHash,
			"createdAt":    u.CreatedAt,
		}, false)
	})
}

func (s *DocUserStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	docs, err := s.store.Find(ctx, docstore.Where(docstore.Users, "email", email))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrUserNotFound
	}
	return userFromDoc(docs[0]), nil
}

func (s *DocUserStorage) GetUserByID(ctx context.Context, id string) (*User, error) {
	doc, ok, err := s.store.Get(ctx, docstore.Users, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	return userFromDoc(doc), nil
}

func userFromDoc(doc docstore.Document) *User {
	return &User{
		ID:           doc.ID,
		Email:        doc.Fields.String("email"),
		PasswordHash: doc.Fields.String("passwordHash"),
		CreatedAt:    doc.Fields.Time("createdAt"),
	}
}
