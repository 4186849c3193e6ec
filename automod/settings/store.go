package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Persisted key/value moderation settings. Set validates before writing; invalid values are never stored.
type Store interface {
	// Returns only the keys which have been explicitly set. Values are normalized.
	Get(ctx context.Context) (Values, error)
	Set(ctx context.Context, key string, raw any) error
}

// Validates every value, then writes them. Nothing is written if any value is invalid.
func Import(ctx context.Context, store Store, vals Values) error {
	norm, err := vals.Normalize()
	if err != nil {
		return err
	}
	for key, v := range norm {
		if err := store.Set(ctx, key, v); err != nil {
			return fmt.Errorf("importing %s: %w", key, err)
		}
	}
	return nil
}

// decodes values read back from persistence, skipping keys which are no longer in the catalogue
func normalizeStored(raw Values) (Values, error) {
	out := make(Values, len(raw))
	var errs []error
	for key, val := range raw {
		if _, ok := Lookup(key); !ok {
			continue
		}
		n, err := Normalize(key, val)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[key] = n
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

type MemStore struct {
	mu   sync.RWMutex
	Data Values
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Data: make(Values),
	}
}

func (s *MemStore) Get(ctx context.Context) (Values, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Values, len(s.Data))
	for k, v := range s.Data {
		out[k] = v
	}
	return out, nil
}

func (s *MemStore) Set(ctx context.Context, key string, raw any) error {
	v, err := Normalize(key, raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Data[key] = v
	return nil
}
