package storage

import (
	"context"
	"fmt"

	"github.com/dgellow/authcallback/internal/config"
)

// New creates the user store selected by cfg
func New(ctx context.Context, cfg config.StorageConfig) (UserStore, error) {
	switch cfg.Kind {
	case config.StorageKindMemory, "":
		return NewMemoryStorage(), nil
	case config.StorageKindFirestore:
		return NewFirestoreStorage(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection)
	default:
		return nil, fmt.Errorf("unknown storage kind: %s", cfg.Kind)
	}
}
