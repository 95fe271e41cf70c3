package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/foliosite/siterelay/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStorage records consumed states in Google Cloud Firestore so
// several relay instances share one replay ledger.
//
// Consume relies on DocumentRef.Create, which fails with AlreadyExists when
// the document is present; Firestore makes that check atomic.
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
}

// Ensure FirestoreStorage implements StateStore
var _ StateStore = (*FirestoreStorage)(nil)

// consumedStateDoc is the document stored per redeemed state
type consumedStateDoc struct {
	ConsumedAt time.Time `firestore:"consumed_at"`
	ExpiresAt  time.Time `firestore:"expires_at"`
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

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: collection,
	}, nil
}

// Consume implements StateStore
func (s *FirestoreStorage) Consume(ctx context.Context, state string, expiresAt time.Time) (bool, error) {
	ref := s.client.Collection(s.collection).Doc(stateKey(state))
	_, err := ref.Create(ctx, consumedStateDoc{
		ConsumedAt: time.Now(),
		ExpiresAt:  expiresAt,
	})
	if err == nil {
		return true, nil
	}
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	return false, fmt.Errorf("failed to record consumed state: %w", err)
}

// CleanupExpired implements StateStore
func (s *FirestoreStorage) CleanupExpired(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.collection).Where("expires_at", "<=", time.Now()).Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("error iterating Firestore documents: %w", err)
		}

		if _, err := doc.Ref.Delete(ctx); err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			log.LogWarnWithFields("storage", "Failed to delete expired state", map[string]any{
				"doc":   doc.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		removed++
	}
	return removed, nil
}

// Close implements StateStore
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
