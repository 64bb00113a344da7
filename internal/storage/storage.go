package storage

import (
	"context"
	"errors"
	"net/url"
	"time"
)

// ErrUserNotFound is returned when a user doesn't exist
var ErrUserNotFound = errors.New("user not found")

// UserRecord tracks a user who has completed a sign-in
type UserRecord struct {
	Provider   string    `json:"provider"`
	Subject    string    `json:"subject"`
	Email      string    `json:"email"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	LoginCount int64     `json:"login_count"`
}

// UserStore records sign-ins. Users are keyed by provider and subject,
// since emails can change at the provider.
type UserStore interface {
	// UpsertUser creates the record on first login and otherwise bumps
	// LastSeen and LoginCount and refreshes Email.
	UpsertUser(ctx context.Context, provider, subject, email string) (*UserRecord, error)
	GetUser(ctx context.Context, provider, subject string) (*UserRecord, error)
	ListUsers(ctx context.Context) ([]UserRecord, error)
	Close() error
}

// userKey builds a key that is also a valid Firestore document ID
func userKey(provider, subject string) string {
	return provider + ":" + url.PathEscape(subject)
}
