package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/authcallback/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ UserStore = (*FirestoreStorage)(nil)

// FirestoreStorage keeps user records in a Firestore collection
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
}

// UserDoc is the Firestore representation of a UserRecord
type UserDoc struct {
	Provider   string    `firestore:"provider"`
	Subject    string    `firestore:"subject"`
	Email      string    `firestore:"email"`
	FirstSeen  time.Time `firestore:"first_seen"`
	LastSeen   time.Time `firestore:"last_seen"`
	LoginCount int64     `firestore:"login_count"`
}

// ToRecord converts the document to a UserRecord
func (d *UserDoc) ToRecord() *UserRecord {
	return &UserRecord{
		Provider:   d.Provider,
		Subject:    d.Subject,
		Email:      d.Email,
		FirstSeen:  d.FirstSeen,
		LastSeen:   d.LastSeen,
		LoginCount: d.LoginCount,
	}
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != firestore.DefaultDatabaseID {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: collection,
	}, nil
}

func (s *FirestoreStorage) userRef(provider, subject string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(userKey(provider, subject))
}

// UpsertUser creates or updates a user inside a transaction so that
// concurrent sign-ins of the same user do not lose login counts
func (s *FirestoreStorage) UpsertUser(ctx context.Context, provider, subject, email string) (*UserRecord, error) {
	ref := s.userRef(provider, subject)
	var result *UserRecord

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now()

		doc, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			userDoc := UserDoc{
				Provider:   provider,
				Subject:    subject,
				Email:      email,
				FirstSeen:  now,
				LastSeen:   now,
				LoginCount: 1,
			}
			result = userDoc.ToRecord()
			return tx.Create(ref, userDoc)
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		var userDoc UserDoc
		if err := doc.DataTo(&userDoc); err != nil {
			return fmt.Errorf("failed to unmarshal user: %w", err)
		}
		userDoc.Email = email
		userDoc.LastSeen = now
		userDoc.LoginCount++
		result = userDoc.ToRecord()

		return tx.Update(ref, []firestore.Update{
			{Path: "email", Value: email},
			{Path: "last_seen", Value: now},
			{Path: "login_count", Value: firestore.Increment(1)},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return result, nil
}

// GetUser returns the stored record
func (s *FirestoreStorage) GetUser(ctx context.Context, provider, subject string) (*UserRecord, error) {
	doc, err := s.userRef(provider, subject).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var userDoc UserDoc
	if err := doc.DataTo(&userDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return userDoc.ToRecord(), nil
}

// ListUsers returns all users, most recently seen first
func (s *FirestoreStorage) ListUsers(ctx context.Context) ([]UserRecord, error) {
	iter := s.client.Collection(s.collection).OrderBy("last_seen", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var users []UserRecord
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate users: %w", err)
		}

		var userDoc UserDoc
		if err := doc.DataTo(&userDoc); err != nil {
			log.LogError("Failed to unmarshal user %s: %v", doc.Ref.ID, err)
			continue
		}
		users = append(users, *userDoc.ToRecord())
	}
	return users, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
