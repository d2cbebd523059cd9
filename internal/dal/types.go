package dal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Billy-Davies-2/draftkit/internal/store"
)

// ErrNotFound is returned by Load when no snapshot is stored under a key.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotDAL persists store snapshots under a string key.
type SnapshotDAL interface {
	Save(ctx context.Context, key string, snap store.Snapshot) error
	Load(ctx context.Context, key string) (store.Snapshot, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

func encode(snap store.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (store.Snapshot, error) {
	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// RestoreInto loads key and restores it into s. It reports false when
// nothing was stored.
func RestoreInto(ctx context.Context, d SnapshotDAL, key string, s *store.Store) (bool, error) {
	snap, err := d.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.Restore(snap); err != nil {
		return false, err
	}
	return true, nil
}
